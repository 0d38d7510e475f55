package publish

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"ctgmonitor/internal/config"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/state"
	"ctgmonitor/test/testutil"

	"github.com/nats-io/nats.go"
)

type captureRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	errs   int
}

func (r *captureRecorder) Published(kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[kind]++
	if err != nil {
		r.errs++
	}
}

func TestSubjectsAndMessageIDs(t *testing.T) {
	t.Parallel()

	if got := SampleSubject("ctg", domain.StreamHeartRate); got != "ctg.samples.heart_rate" {
		t.Fatalf("unexpected sample subject %q", got)
	}
	if got := AlertSubject("ctg"); got != "ctg.alerts" {
		t.Fatalf("unexpected alert subject %q", got)
	}
	if got := SampleMsgID(domain.StreamContractions, domain.Sample{TimeSec: 12, Value: 33.5}); got != "contractions:12:33.5" {
		t.Fatalf("unexpected sample msg id %q", got)
	}
	calm := domain.AIMessage{Time: 7, ShortTerm: domain.ShortTerm{Status: domain.AIStatusNormal}}
	alarm := domain.AIMessage{Time: 7, ShortTerm: domain.ShortTerm{Status: domain.AIStatusAlarm}}
	if AIMsgID(calm) == AIMsgID(alarm) {
		t.Fatalf("distinct AI messages in one second must not share msg id %q", AIMsgID(calm))
	}
	if !strings.HasPrefix(AIMsgID(calm), "ai:7-") {
		t.Fatalf("unexpected ai msg id %q", AIMsgID(calm))
	}
	alert := domain.Alert{ID: "hypoxia-high-5", Timestamp: time.Unix(5, 0)}
	if got := AlertMsgID(alert); got != "alert:hypoxia-high-5:5000" {
		t.Fatalf("unexpected alert msg id %q", got)
	}
}

func TestPublisherFansOutStoreAppendsAndAlerts(t *testing.T) {
	url := testutil.StartLocalNATSServer(t)

	recorder := &captureRecorder{}
	publisher, err := NewPublisher(config.NATSPublishConfig{
		Enabled:       true,
		URL:           []string{url},
		Stream:        "CTG_TEST",
		SubjectPrefix: "ctgtest",
	}, logging.Discard(), recorder)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	store := state.NewStore(10)
	detach := publisher.Attach(store)
	defer detach()

	store.HeartRate.Append(domain.Sample{TimeSec: 100, Value: 141})
	store.HeartRate.Append(domain.Sample{TimeSec: 100, Value: 141})
	store.Contractions.Append(domain.Sample{TimeSec: 100, Value: 20})
	publisher.Alert(domain.Alert{ID: "status-alert-100", Kind: domain.AlertError, Timestamp: time.Unix(100, 0)})

	heartRate := testutil.CollectJetStream(t, url, "ctgtest.samples.heart_rate", 2, 2*time.Second)
	if len(heartRate) != 1 {
		t.Fatalf("duplicate msg id must be deduplicated, got %d messages", len(heartRate))
	}
	var sample domain.Sample
	if err := json.Unmarshal(heartRate[0].Data, &sample); err != nil || sample.Value != 141 {
		t.Fatalf("unexpected sample payload %s err=%v", heartRate[0].Data, err)
	}
	if heartRate[0].Header.Get(nats.MsgIdHdr) != "heart_rate:100:141" {
		t.Fatalf("unexpected msg id header %q", heartRate[0].Header.Get(nats.MsgIdHdr))
	}

	alerts := testutil.CollectJetStream(t, url, "ctgtest.alerts", 1, 2*time.Second)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert message, got %d", len(alerts))
	}
	var alert domain.Alert
	if err := json.Unmarshal(alerts[0].Data, &alert); err != nil || alert.ID != "status-alert-100" {
		t.Fatalf("unexpected alert payload %s err=%v", alerts[0].Data, err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.counts[KindSample] != 3 || recorder.counts[KindAlert] != 1 || recorder.errs != 0 {
		t.Fatalf("unexpected recorder state %+v errs=%d", recorder.counts, recorder.errs)
	}
}

func TestCloseIsIdempotentAndDropsLaterItems(t *testing.T) {
	url := testutil.StartLocalNATSServer(t)

	publisher, err := NewPublisher(config.NATSPublishConfig{
		URL:           []string{url},
		Stream:        "CTG_CLOSE",
		SubjectPrefix: "ctgclose",
	}, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	publisher.Sample(domain.StreamHeartRate, domain.Sample{TimeSec: 1, Value: 1})
}
