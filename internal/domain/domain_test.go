package domain

import (
	"strings"
	"testing"
)

func TestDecodeAIMessageAcceptsRussianAndEnglishStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want AIStatus
	}{
		{name: "russian alarm", raw: `"Тревога"`, want: AIStatusAlarm},
		{name: "russian suspicion", raw: `"Подозрение"`, want: AIStatusSuspicion},
		{name: "english normal", raw: `"Normal"`, want: AIStatusNormal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload := `{"time":1700000000,"short_term":{"status":` + tt.raw + `,"events":[]},"long_term":{"hypoxia_60":0.1,"emergency_30":0.2}}`
			message, err := DecodeAIMessage([]byte(payload))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if message.ShortTerm.Status != tt.want {
				t.Fatalf("status=%q want %q", message.ShortTerm.Status, tt.want)
			}
		})
	}
}

func TestDecodeAIMessageRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{name: "malformed json", payload: `{"time":`, wantErr: "decode ai message"},
		{name: "missing time", payload: `{"short_term":{"status":"Normal"},"long_term":{}}`, wantErr: "time must be >0"},
		{name: "unknown status", payload: `{"time":1,"short_term":{"status":"Calm"},"long_term":{}}`, wantErr: "unsupported ai status"},
		{name: "unknown event", payload: `{"time":1,"short_term":{"status":"Normal","events":[{"type":"hiccup","severity":0.5}]},"long_term":{}}`, wantErr: "unsupported type"},
		{name: "severity range", payload: `{"time":1,"short_term":{"status":"Normal","events":[{"type":"tachycardia","severity":1.5}]},"long_term":{}}`, wantErr: "severity must be in [0,1]"},
		{name: "hypoxia range", payload: `{"time":1,"short_term":{"status":"Normal"},"long_term":{"hypoxia_60":-0.1}}`, wantErr: "hypoxia_60"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeAIMessage([]byte(tt.payload))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecodeSample(t *testing.T) {
	t.Parallel()

	sample, err := DecodeSample([]byte(`{"time_sec":1700000001,"value":142}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sample.TimeSec != 1_700_000_001 || sample.Value != 142 {
		t.Fatalf("unexpected sample %+v", sample)
	}

	fractional, err := DecodeSample([]byte(`{"time_sec":12.9,"value":0.5}`))
	if err != nil {
		t.Fatalf("decode fractional: %v", err)
	}
	if fractional.TimeSec != 12 {
		t.Fatalf("expected truncated seconds, got %d", fractional.TimeSec)
	}

	if _, err := DecodeSample([]byte(`{"value":1}`)); err == nil {
		t.Fatalf("expected missing time_sec error")
	}
	if _, err := DecodeSample([]byte(`{"time_sec":1}`)); err == nil {
		t.Fatalf("expected missing value error")
	}
	if _, err := DecodeSample([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSignatureIgnoresSubPercentNoise(t *testing.T) {
	t.Parallel()

	base := AIMessage{
		Time:      10,
		ShortTerm: ShortTerm{Status: AIStatusNormal, Events: []AIEvent{{Type: AIEventTachycardia, Severity: 0.501}}},
		LongTerm:  LongTerm{Hypoxia60: 0.3, Emergency30: 0.2},
	}
	same := base
	same.ShortTerm.Events = []AIEvent{{Type: AIEventTachycardia, Severity: 0.503}}
	if base.Signature() != same.Signature() {
		t.Fatalf("expected equal signatures: %q vs %q", base.Signature(), same.Signature())
	}

	later := base
	later.Time = 11
	if base.Signature() == later.Signature() {
		t.Fatalf("expected new timestamp to change signature")
	}
	if got := base.Signature(); got != "10-Normal-tachycardia:0.50-0.30-0.20" {
		t.Fatalf("unexpected signature %q", got)
	}
}

func TestParseStreamKindAliases(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]StreamKind{"bpm": StreamHeartRate, "UC": StreamContractions, "ai": StreamAI} {
		got, err := ParseStreamKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseStreamKind(%q)=%q,%v want %q", raw, got, err, want)
		}
	}
	if _, err := ParseStreamKind("spo2"); err == nil {
		t.Fatalf("expected unknown stream error")
	}
}
