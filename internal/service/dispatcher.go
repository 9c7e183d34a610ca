package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/coursedesk/payment-service/internal/models"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

// effectTimeout bounds each outbound call. A slow collaborator must never
// back up into the request path.
const effectTimeout = 10 * time.Second

const mailSubject = "mail.send.confirmation"

// Dispatcher drains post-acknowledgement side effects on worker goroutines,
// decoupled from the HTTP response lifecycle. Each effect is independent and
// best-effort: failures are logged and counted, never retried and never
// surfaced to the request path.
type Dispatcher struct {
	effects       chan models.SideEffect
	nc            *nats.Conn
	kafkaWriter   *kafka.Writer
	httpClient    *http.Client
	newsletterURL string
	accountingURL string
	wg            sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Any collaborator may be nil or empty;
// effects targeting a missing collaborator are skipped with a log line.
func NewDispatcher(nc *nats.Conn, kafkaWriter *kafka.Writer, newsletterURL, accountingURL string) *Dispatcher {
	return &Dispatcher{
		effects:       make(chan models.SideEffect, 256),
		nc:            nc,
		kafkaWriter:   kafkaWriter,
		httpClient:    &http.Client{Timeout: effectTimeout},
		newsletterURL: newsletterURL,
		accountingURL: accountingURL,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Enqueue hands effects to the workers without blocking. When the queue is
// full the effect is dropped and logged; best-effort delivery is the contract.
func (d *Dispatcher) Enqueue(effects []models.SideEffect) {
	for _, effect := range effects {
		select {
		case d.effects <- effect:
		default:
			telemetry.SideEffectFailures.WithLabelValues(string(effect.Type)).Inc()
			telemetry.Logger.Warn("Side effect queue full, dropping effect",
				zap.String("effect_id", effect.ID),
				zap.String("type", string(effect.Type)),
				zap.String("order_no", effect.OrderNo),
			)
		}
	}
}

// Close stops accepting effects and waits for in-flight ones to finish.
func (d *Dispatcher) Close() {
	close(d.effects)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for effect := range d.effects {
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		if err := d.execute(ctx, effect); err != nil {
			telemetry.SideEffectFailures.WithLabelValues(string(effect.Type)).Inc()
			telemetry.Logger.Error("Side effect failed",
				zap.String("effect_id", effect.ID),
				zap.String("type", string(effect.Type)),
				zap.String("order_no", effect.OrderNo),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (d *Dispatcher) execute(ctx context.Context, effect models.SideEffect) error {
	switch effect.Type {
	case models.SideEffectConfirmationEmail:
		return d.sendConfirmationEmail(effect)
	case models.SideEffectNewsletterSignup:
		return d.postJSON(ctx, d.newsletterURL, map[string]string{
			"email": effect.Email,
			"name":  effect.Name,
		})
	case models.SideEffectAccountingWebhook:
		return d.postJSON(ctx, d.accountingURL, map[string]any{
			"order_no": effect.OrderNo,
			"amount":   effect.Amount,
		})
	case models.SideEffectSettledEvent:
		return d.publishSettledEvent(ctx, effect)
	default:
		telemetry.Logger.Warn("Unknown side effect type", zap.String("type", string(effect.Type)))
		return nil
	}
}

func (d *Dispatcher) sendConfirmationEmail(effect models.SideEffect) error {
	if d.nc == nil {
		telemetry.Logger.Info("Mailer not configured, skipping confirmation email",
			zap.String("order_no", effect.OrderNo))
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"order_no": effect.OrderNo,
		"email":    effect.Email,
		"name":     effect.Name,
		"amount":   effect.Amount,
	})
	if err != nil {
		return err
	}
	return d.nc.Publish(mailSubject, payload)
}

func (d *Dispatcher) publishSettledEvent(ctx context.Context, effect models.SideEffect) error {
	if d.kafkaWriter == nil {
		return nil
	}
	value, err := json.Marshal(map[string]any{
		"event_id":  effect.ID,
		"order_no":  effect.OrderNo,
		"amount":    effect.Amount,
		"timestamp": time.Now(),
	})
	if err != nil {
		return err
	}
	return d.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(effect.OrderNo),
		Value: value,
	})
}

func (d *Dispatcher) postJSON(ctx context.Context, webhookURL string, body any) error {
	if webhookURL == "" {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &webhookStatusError{URL: webhookURL, Status: resp.StatusCode}
	}
	return nil
}

type webhookStatusError struct {
	URL    string
	Status int
}

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("webhook %s returned status %d", e.URL, e.Status)
}
