package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"ctgmonitor/internal/config"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"
	"ctgmonitor/internal/permanent"
	"ctgmonitor/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Channel keys.
const (
	ChannelTelegram = "telegram"
	ChannelHTTP     = "http"
)

const queueSize = 256

// Notification is the template and webhook payload for one alert.
type Notification struct {
	Service   string           `json:"service"`
	Channel   string           `json:"channel"`
	AlertID   string           `json:"alert_id"`
	Kind      domain.AlertKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Severity  *float64         `json:"severity,omitempty"`
	Text      string           `json:"text"`
}

// SendResult returns channel-specific metadata after successful delivery.
type SendResult struct {
	MessageID int
}

// ChannelSender sends one rendered notification to one channel.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, notification Notification) (SendResult, error)
}

// Recorder receives delivery outcomes.
type Recorder interface {
	Notified(channel string, err error)
}

type nopRecorder struct{}

func (nopRecorder) Notified(string, error) {}

// Dispatcher delivers alerts at or above a minimum kind with per-channel retries.
// Params: sender set, retry policies, and one message template.
// Returns: asynchronous alert sink plus synchronous Deliver for callers that wait.
type Dispatcher struct {
	service  string
	senders  map[string]ChannelSender
	channels []string
	retries  map[string]config.NotifyRetry
	body     *template.Template
	minRank  int
	logger   *slog.Logger
	recorder Recorder

	queue     chan domain.Alert
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewDispatcher builds a dispatcher from enabled channels.
// Params: notify config, service name, logger, and optional recorder.
// Returns: dispatcher or template parse error.
func NewDispatcher(cfg config.NotifyConfig, service string, logger *slog.Logger, recorder Recorder) (*Dispatcher, error) {
	body, err := templatefmt.ParseAlertTemplate("notify.template", cfg.Template)
	if err != nil {
		return nil, permanent.Markf("notify template: %w", err)
	}
	senders := make(map[string]ChannelSender)
	retries := make(map[string]config.NotifyRetry)
	if cfg.Telegram.Enabled {
		senders[ChannelTelegram] = NewTelegramSender(cfg.Telegram)
		retries[ChannelTelegram] = cfg.Telegram.Retry
	}
	if cfg.HTTP.Enabled {
		senders[ChannelHTTP] = NewHTTPSender(cfg.HTTP)
		retries[ChannelHTTP] = cfg.HTTP.Retry
	}
	return newDispatcher(service, senders, retries, body, cfg.MinKind, logger, recorder), nil
}

func newDispatcher(
	service string,
	senders map[string]ChannelSender,
	retries map[string]config.NotifyRetry,
	body *template.Template,
	minKind string,
	logger *slog.Logger,
	recorder Recorder,
) *Dispatcher {
	channels := make([]string, 0, len(senders))
	for channel := range senders {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		service:  service,
		senders:  senders,
		channels: channels,
		retries:  retries,
		body:     body,
		minRank:  kindRank(domain.AlertKind(minKind)),
		logger:   logging.ForComponent(logger, "notify"),
		recorder: recorder,
		queue:    make(chan domain.Alert, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Channels returns configured channel keys in stable order.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

// Accepts reports whether alert kind passes the minimum kind filter.
func (d *Dispatcher) Accepts(alert domain.Alert) bool {
	return kindRank(alert.Kind) >= d.minRank
}

// Start runs the delivery loop until ctx is cancelled or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.loop(ctx)
	})
}

// Close stops the delivery loop; queued alerts are dropped.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.startOnce.Do(func() { close(d.done) })
		<-d.done
	})
	return nil
}

// Notify queues alert for delivery when it passes the kind filter.
// Params: newly derived alert.
// Returns: none; a full queue drops the alert with a warning.
func (d *Dispatcher) Notify(alert domain.Alert) {
	if len(d.channels) == 0 || !d.Accepts(alert) {
		return
	}
	select {
	case <-d.stop:
		return
	default:
	}
	select {
	case d.queue <- alert:
	default:
		d.logger.Warn("notify queue full, dropping alert", "alert_id", alert.ID)
	}
}

// Deliver renders alert and sends it to every channel.
// Params: context bounding retries and alert.
// Returns: joined per-channel errors.
func (d *Dispatcher) Deliver(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, channel := range d.channels {
		if _, err := d.Send(ctx, channel, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send renders alert for channel and delivers it with the channel retry policy.
// Params: destination channel and alert.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) Send(ctx context.Context, channel string, alert domain.Alert) (SendResult, error) {
	sender, ok := d.senders[channel]
	if !ok {
		return SendResult{}, permanent.Markf("notify channel %q is not configured", channel)
	}
	notification := Notification{
		Service:   d.service,
		Channel:   channel,
		AlertID:   alert.ID,
		Kind:      alert.Kind,
		Title:     alert.Title,
		Message:   alert.Message,
		Timestamp: alert.Timestamp,
		Severity:  alert.Severity,
	}
	text, err := d.render(notification)
	if err != nil {
		d.recorder.Notified(channel, err)
		return SendResult{}, err
	}
	notification.Text = text

	result, err := d.sendWithRetry(ctx, sender, notification, d.retries[channel])
	d.recorder.Notified(channel, err)
	return result, err
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case alert := <-d.queue:
			if err := d.Deliver(ctx, alert); err != nil {
				d.logger.Error("notify delivery failed", "alert_id", alert.ID, "error", err.Error())
			}
		}
	}
}

func (d *Dispatcher) render(notification Notification) (string, error) {
	var rendered strings.Builder
	if err := d.body.Execute(&rendered, notification); err != nil {
		return "", permanent.Markf("render notify template for channel %q: %w", notification.Channel, err)
	}
	return rendered.String(), nil
}

// sendWithRetry retries transient failures; permanent errors stop immediately.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, notification Notification, retry config.NotifyRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, notification)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	for {
		attempt++
		result, err := sender.Send(ctx, notification)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("notify send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt {
			d.logger.Warn("notify send attempt failed", "channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}
		if permanent.Is(err) {
			return SendResult{}, err
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}
		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func kindRank(kind domain.AlertKind) int {
	switch kind {
	case domain.AlertError:
		return 2
	case domain.AlertWarning:
		return 1
	default:
		return 0
	}
}

// TelegramSender posts rendered alerts to a Telegram chat.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates the Telegram client without calling getMe.
// Params: Telegram notifier config.
// Returns: sender; configuration problems surface as permanent Send errors.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{chatID: normalizeChatID(cfg.ChatID)}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram bot token is required"))
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram chat_id is required"))
		return sender
	}

	client, err := tgbot.New(cfg.BotToken,
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	)
	if err != nil {
		sender.initErr = permanent.Markf("init telegram bot: %w", err)
		return sender
	}
	sender.client = client
	return sender
}

// Channel returns "telegram".
func (s *TelegramSender) Channel() string {
	return ChannelTelegram
}

// Send posts notification text to the configured chat.
func (s *TelegramSender) Send(ctx context.Context, notification Notification) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      notification.Text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID keeps numeric chat ids numeric and @channel names as strings.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// HTTPSender posts the notification JSON to a webhook.
type HTTPSender struct {
	cfg    config.HTTPNotifier
	client *http.Client
}

// NewHTTPSender creates a webhook sender.
func NewHTTPSender(cfg config.HTTPNotifier) *HTTPSender {
	return &HTTPSender{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Channel returns "http".
func (s *HTTPSender) Channel() string {
	return ChannelHTTP
}

// Send delivers the JSON payload.
// Params: context and notification.
// Returns: transport error, or a permanent error for 4xx responses other than 408 and 429.
func (s *HTTPSender) Send(ctx context.Context, notification Notification) (SendResult, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return SendResult{}, permanent.Markf("encode http notify payload: %w", err)
	}
	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, permanent.Markf("build http notify request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return SendResult{}, fmt.Errorf("http notify send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return SendResult{}, nil
	}
	return SendResult{}, permanent.FromStatus(response.StatusCode, unexpectedHTTPStatusError("http notify", response))
}

// unexpectedHTTPStatusError formats a non-2xx response with its trimmed body.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmed)
}
