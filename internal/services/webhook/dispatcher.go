package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/metrics"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher queues signed webhook deliveries and sends them with retries.
// Deliveries are claimed through a lease on next_attempt_at so the worker
// pool, the scheduler and other instances never send the same attempt
// twice.
type Dispatcher struct {
	repo    repositories.WebhookRepository
	client  *http.Client
	config  Config
	log     zerolog.Logger
	metrics metrics.Collector
	now     func() time.Time

	wake chan struct{}
	jobs chan models.WebhookDelivery
	wg   sync.WaitGroup
}

func NewDispatcher(repo repositories.WebhookRepository, config Config, log zerolog.Logger, m metrics.Collector) *Dispatcher {
	if repo == nil {
		panic("webhook repository is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 6
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &Dispatcher{
		repo:    repo,
		client:  &http.Client{Timeout: config.Timeout},
		config:  config,
		log:     log.With().Str("component", "webhook").Logger(),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		wake:    make(chan struct{}, 1),
		jobs:    make(chan models.WebhookDelivery, config.BatchSize),
	}
}

// lease is how long a claimed delivery stays invisible to other pollers.
func (d *Dispatcher) lease() time.Duration {
	return 2*d.config.Timeout + time.Minute
}

// Build renders and signs the delivery for ev. It returns nil when neither
// the request nor the developer has a webhook target.
func (d *Dispatcher) Build(dev *models.DeveloperAccount, ev Event) (*models.WebhookDelivery, error) {
	target := ev.Request.WebhookURL
	if target == "" {
		target = dev.WebhookURL
	}
	if target == "" {
		return nil, nil
	}

	body, err := json.Marshal(Payload{
		Event: ev.Type,
		Data: PayloadData{
			PaymentID: ev.Request.ID,
			Amount:    ev.Request.Amount.StringFixed(2),
			Currency:  ev.Request.Currency,
			Status:    string(ev.Request.Status),
			Timestamp: ev.At.UTC().Format(time.RFC3339),
			Error:     ev.Error,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	at := ev.At.UTC()
	return &models.WebhookDelivery{
		ID:               uuid.NewString(),
		PaymentRequestID: ev.Request.ID,
		DeveloperID:      dev.ID,
		EventType:        ev.Type,
		TargetURL:        target,
		Payload:          string(body),
		Signature:        utils.SignHMAC(dev.WebhookSecret, body),
		MaxAttempts:      d.config.MaxAttempts,
		Status:           models.DeliveryStatusQueued,
		NextAttemptAt:    &at,
	}, nil
}

// Enqueue stores the delivery for ev through repo, which may be bound to
// the caller's database transaction. A second enqueue of the same event
// for the same request is a no-op. Call Nudge once the data is committed.
func (d *Dispatcher) Enqueue(ctx context.Context, repo repositories.WebhookRepository, dev *models.DeveloperAccount, ev Event) (*models.WebhookDelivery, error) {
	if repo == nil {
		repo = d.repo
	}
	delivery, err := d.Build(dev, ev)
	if err != nil || delivery == nil {
		return nil, err
	}
	if err := repo.Create(ctx, delivery); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}
	d.log.Debug().
		Str("delivery_id", delivery.ID).
		Str("payment_id", ev.Request.ID).
		Str("event", ev.Type).
		Msg("webhook queued")
	return delivery, nil
}

// Nudge asks a running pool to poll now. It never blocks.
func (d *Dispatcher) Nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the worker pool until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case delivery, ok := <-d.jobs:
					// unsent jobs keep their lease and are claimed again
					// once it runs out
					if !ok || ctx.Err() != nil {
						return
					}
					d.deliver(ctx, delivery)
				}
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(d.jobs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
				if _, err := d.Poll(ctx); err != nil && ctx.Err() == nil {
					d.log.Error().Err(err).Msg("webhook poll failed")
				}
			}
		}
	}()
}

// Wait blocks until the pool started by Start has drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Poll claims due deliveries and hands them to the worker pool.
func (d *Dispatcher) Poll(ctx context.Context) (int, error) {
	due, err := d.claim(ctx)
	for _, delivery := range due {
		select {
		case d.jobs <- delivery:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return len(due), err
}

// RetryWebhookDeliveries claims due deliveries and attempts them on the
// calling goroutine.
func (d *Dispatcher) RetryWebhookDeliveries(ctx context.Context) (int, error) {
	due, err := d.claim(ctx)
	for _, delivery := range due {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		d.deliver(ctx, delivery)
	}
	return len(due), err
}

func (d *Dispatcher) claim(ctx context.Context) ([]models.WebhookDelivery, error) {
	now := d.now()
	return d.repo.ClaimDue(ctx, now, now.Add(d.lease()), d.config.BatchSize)
}

// AttemptDelivery leases one due delivery and sends it now. A delivery that
// is not queued, still backing off or held by another worker is refused.
func (d *Dispatcher) AttemptDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	now := d.now()
	ok, err := d.repo.Claim(ctx, id, now, now.Add(d.lease()))
	if err != nil {
		return nil, err
	}
	delivery, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if delivery.Status != models.DeliveryStatusQueued || delivery.NextAttemptAt == nil {
			return delivery, apperrors.Newf(apperrors.ErrInvalidState, "delivery is %s", delivery.Status)
		}
		return delivery, apperrors.Newf(apperrors.ErrInvalidState, "delivery is leased or not due until %s",
			delivery.NextAttemptAt.UTC().Format(time.RFC3339))
	}
	d.deliver(ctx, *delivery)
	return d.repo.GetByID(ctx, id)
}

func (d *Dispatcher) deliver(ctx context.Context, delivery models.WebhookDelivery) {
	log := d.log.With().
		Str("delivery_id", delivery.ID).
		Str("payment_id", delivery.PaymentRequestID).
		Str("event", delivery.EventType).
		Logger()

	code, sendErr := d.send(ctx, delivery)
	result := repositories.AttemptResult{
		AttemptCount: delivery.AttemptCount + 1,
		StatusCode:   code,
		At:           d.now(),
	}

	switch {
	case sendErr == nil:
		result.Status = models.DeliveryStatusDelivered
		d.metrics.RecordWebhookAttempt("delivered")
		log.Info().Int("status_code", code).Int("attempt", result.AttemptCount).Msg("webhook delivered")
	case result.AttemptCount >= delivery.MaxAttempts:
		result.Status = models.DeliveryStatusExhausted
		result.Error = truncate(sendErr.Error())
		d.metrics.RecordWebhookAttempt("exhausted")
		log.Warn().Err(apperrors.Wrap(apperrors.ErrDeliveryExhausted, sendErr)).Int("attempt", result.AttemptCount).Msg("webhook delivery exhausted")
	default:
		next := result.At.Add(NextDelay(result.AttemptCount))
		result.Status = models.DeliveryStatusQueued
		result.Error = truncate(sendErr.Error())
		result.NextAttemptAt = &next
		d.metrics.RecordWebhookAttempt("retry")
		log.Warn().Err(sendErr).Int("attempt", result.AttemptCount).Time("next_attempt_at", next).Msg("webhook delivery failed")
	}

	// Recording uses a fresh context so a shutdown mid-send still persists
	// the attempt.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.repo.RecordAttempt(recordCtx, delivery.ID, result); err != nil {
		log.Error().Err(err).Msg("failed to record webhook attempt")
	}
}

func (d *Dispatcher) send(ctx context.Context, delivery models.WebhookDelivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.TargetURL, bytes.NewBufferString(delivery.Payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, delivery.Signature)
	req.Header.Set(HeaderID, delivery.ID)
	req.Header.Set(HeaderEvent, delivery.EventType)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseRead))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint answered %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// NextDelay returns the wait after the given failed attempt (1-based).
func NextDelay(attempt int) time.Duration {
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(Backoff) {
		i = len(Backoff) - 1
	}
	return Backoff[i]
}

func truncate(s string) string {
	if len(s) > maxErrorLength {
		return s[:maxErrorLength]
	}
	return s
}

// ListDeliveries pages through a developer's deliveries, newest first.
func (d *Dispatcher) ListDeliveries(ctx context.Context, dev *models.DeveloperAccount, status string, offset, limit int) ([]models.WebhookDelivery, int64, error) {
	switch models.DeliveryStatus(status) {
	case "", models.DeliveryStatusQueued, models.DeliveryStatusDelivered, models.DeliveryStatusExhausted:
	default:
		return nil, 0, apperrors.Newf(apperrors.ErrValidation, "unknown delivery status %q", status)
	}
	return d.repo.ListByDeveloper(ctx, dev.ID, status, offset, limit)
}

// Redeliver puts an exhausted delivery back in the queue with a fresh
// attempt budget.
func (d *Dispatcher) Redeliver(ctx context.Context, dev *models.DeveloperAccount, id string) (*models.WebhookDelivery, error) {
	ok, err := d.repo.Requeue(ctx, id, dev.ID, d.now())
	if err != nil {
		return nil, err
	}
	delivery, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if delivery.DeveloperID != dev.ID {
		return nil, repositories.ErrDeliveryNotFound
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidState, "only exhausted deliveries can be redelivered")
	}
	d.Nudge()
	return delivery, nil
}
