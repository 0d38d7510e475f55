package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"ctgmonitor/internal/config"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/state"

	"github.com/nats-io/nats.go"
)

const (
	streamMaxAge   = 24 * time.Hour
	publishTimeout = 5 * time.Second
	queueSize      = 1024
)

// Subject kinds used for metrics labels.
const (
	KindSample = "sample"
	KindAI     = "ai"
	KindAlert  = "alert"
)

// Recorder receives publish outcomes.
type Recorder interface {
	Published(kind string, err error)
}

type nopRecorder struct{}

func (nopRecorder) Published(string, error) {}

type envelope struct {
	kind    string
	subject string
	msgID   string
	body    []byte
}

// Publisher fans decoded samples, AI messages, and new alerts out to JetStream.
// Params: NATS connection and subject prefix.
// Returns: best-effort producer with a bounded in-process queue.
type Publisher struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	prefix   string
	logger   *slog.Logger
	recorder Recorder

	queue     chan envelope
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPublisher connects to NATS, ensures the stream, and starts the send loop.
// Params: publish config, logger, and optional recorder.
// Returns: running publisher or setup error.
func NewPublisher(cfg config.NATSPublishConfig, logger *slog.Logger, recorder Recorder) (*Publisher, error) {
	if len(cfg.URL) == 0 {
		return nil, errors.New("publish nats url is required")
	}
	nc, err := nats.Connect(strings.Join(cfg.URL, ","), nats.Name("ctgmonitor-publish"))
	if err != nil {
		return nil, fmt.Errorf("connect publish nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for publish: %w", err)
	}
	prefix := strings.TrimSpace(cfg.SubjectPrefix)
	if err := ensureStream(js, cfg.Stream, prefix+".>"); err != nil {
		nc.Close()
		return nil, err
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	p := &Publisher{
		nc:       nc,
		js:       js,
		prefix:   prefix,
		logger:   logging.ForComponent(logger, "publish"),
		recorder: recorder,
		queue:    make(chan envelope, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

// Attach publishes every appended item of store.
// Params: store to observe.
// Returns: cancel function.
func (p *Publisher) Attach(store *state.Store) func() {
	return store.Subscribe(func(change state.Change) {
		if change.Kind != state.ChangeAppend {
			return
		}
		if change.Stream == domain.StreamAI {
			if message, ok := store.AI.Last(); ok {
				p.AIMessage(message)
			}
			return
		}
		if stream := store.Samples(change.Stream); stream != nil {
			if sample, ok := stream.Last(); ok {
				p.Sample(change.Stream, sample)
			}
		}
	})
}

// Sample queues one heart-rate or contraction sample.
func (p *Publisher) Sample(stream domain.StreamKind, sample domain.Sample) {
	p.enqueue(KindSample, SampleSubject(p.prefix, stream), SampleMsgID(stream, sample), sample)
}

// AIMessage queues one decoded AI message.
func (p *Publisher) AIMessage(message domain.AIMessage) {
	p.enqueue(KindAI, SampleSubject(p.prefix, domain.StreamAI), AIMsgID(message), message)
}

// Alert queues one newly derived alert.
func (p *Publisher) Alert(alert domain.Alert) {
	p.enqueue(KindAlert, AlertSubject(p.prefix), AlertMsgID(alert), alert)
}

// Close stops the send loop and closes the NATS connection.
// Params: none.
// Returns: nil; queued items not yet sent are dropped.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
		if p.nc != nil {
			p.nc.Close()
		}
	})
	return nil
}

func (p *Publisher) enqueue(kind, subject, msgID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.recorder.Published(kind, err)
		p.logger.Warn("publish encode failed", "subject", subject, "error", err.Error())
		return
	}
	select {
	case <-p.stop:
		return
	default:
	}
	select {
	case p.queue <- envelope{kind: kind, subject: subject, msgID: msgID, body: body}:
	default:
		p.recorder.Published(kind, errors.New("queue full"))
		p.logger.Warn("publish queue full, dropping", "subject", subject)
	}
}

func (p *Publisher) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case item := <-p.queue:
			err := p.send(item)
			p.recorder.Published(item.kind, err)
			if err != nil {
				p.logger.Warn("publish failed", "subject", item.subject, "error", err.Error())
			}
		}
	}
}

func (p *Publisher) send(item envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := nats.NewMsg(item.subject)
	msg.Data = item.body
	if item.msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, item.msgID)
	}
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", item.subject, err)
	}
	return nil
}

// SampleSubject returns "<prefix>.samples.<stream>".
func SampleSubject(prefix string, stream domain.StreamKind) string {
	return prefix + ".samples." + string(stream)
}

// AlertSubject returns "<prefix>.alerts".
func AlertSubject(prefix string) string {
	return prefix + ".alerts"
}

// SampleMsgID builds the JetStream dedup id of one sample.
func SampleMsgID(stream domain.StreamKind, sample domain.Sample) string {
	return string(stream) + ":" + strconv.FormatInt(sample.TimeSec, 10) + ":" + strconv.FormatFloat(sample.Value, 'g', -1, 64)
}

// AIMsgID builds the JetStream dedup id of one AI message from its change signature.
func AIMsgID(message domain.AIMessage) string {
	return "ai:" + message.Signature()
}

// AlertMsgID builds the JetStream dedup id of one alert version.
func AlertMsgID(alert domain.Alert) string {
	return "alert:" + alert.ID + ":" + strconv.FormatInt(alert.Timestamp.UnixMilli(), 10)
}

// ensureStream creates the stream when it does not exist yet.
func ensureStream(js nats.JetStreamContext, name, subject string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", name, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    streamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", name, err)
	}
	return nil
}
