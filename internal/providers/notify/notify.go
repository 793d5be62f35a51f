// Package notify delivers rendered notifications to the external messaging
// service. The service exposes one endpoint per channel and authenticates
// with a per-channel bearer token.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beneflow/beneflow/internal/config"
	"go.uber.org/zap"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsapp = "whatsapp"
)

// Message is one rendered notification. Subject and HTML only apply to the
// email channel.
type Message struct {
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject,omitempty"`
	Text      string         `json:"text"`
	HTML      string         `json:"html,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Dispatcher interface {
	Send(ctx context.Context, channel string, msg Message) error
}

// NewDispatcher returns the HTTP dispatcher, or a logging no-op when no
// messaging service is configured.
func NewDispatcher(cfg config.Config, log *zap.Logger) Dispatcher {
	if cfg.NotifierBaseURL == "" {
		return &noopDispatcher{log: log.Named("notify.noop")}
	}

	timeout := time.Duration(cfg.NotifierTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpDispatcher{
		baseURL:       cfg.NotifierBaseURL,
		emailToken:    cfg.NotifierEmailToken,
		whatsappToken: cfg.NotifierWhatsappToken,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log.Named("notify.http"),
	}
}

type httpDispatcher struct {
	baseURL       string
	emailToken    string
	whatsappToken string
	httpClient    *http.Client
	log           *zap.Logger
}

func (d *httpDispatcher) Send(ctx context.Context, channel string, msg Message) error {
	var token string
	switch channel {
	case ChannelEmail:
		token = d.emailToken
	case ChannelWhatsapp:
		token = d.whatsappToken
	default:
		return fmt.Errorf("notify: unsupported channel %q", channel)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/notifications/"+channel, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: %s dispatch returned status %d", channel, resp.StatusCode)
	}
	return nil
}

type noopDispatcher struct {
	log *zap.Logger
}

func (d *noopDispatcher) Send(_ context.Context, channel string, msg Message) error {
	d.log.Info("notification suppressed, no messaging service configured",
		zap.String("channel", channel),
		zap.String("recipient", msg.Recipient))
	return nil
}
