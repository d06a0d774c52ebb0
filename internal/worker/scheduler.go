// Package worker runs the periodic jobs: expiring stale payment requests
// and retrying webhook deliveries.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"cardpay/internal/repositories/cache"

	"github.com/rs/zerolog"
)

// Locker hands out cross-instance leases. *cache.Client implements it.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (*cache.Lock, error)
}

type PaymentExpirer interface {
	ExpireStalePaymentRequests(ctx context.Context, now time.Time) (int, error)
}

type WebhookRetrier interface {
	RetryWebhookDeliveries(ctx context.Context) (int, error)
}

type Config struct {
	ExpiryInterval  time.Duration
	WebhookInterval time.Duration
	LockTTL         time.Duration
}

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs each job on its own ticker. With a Locker only one
// instance runs a given job per tick; without one every instance runs it.
type Scheduler struct {
	jobs   []Job
	locker Locker
	ttl    time.Duration
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewScheduler(payments PaymentExpirer, webhooks WebhookRetrier, locker Locker, config Config, logger zerolog.Logger) *Scheduler {
	if config.ExpiryInterval <= 0 {
		config.ExpiryInterval = time.Minute
	}
	if config.WebhookInterval <= 0 {
		config.WebhookInterval = 15 * time.Second
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 50 * time.Second
	}

	return &Scheduler{
		jobs: []Job{
			{
				Name:     "expire_payment_requests",
				Interval: config.ExpiryInterval,
				Run: func(ctx context.Context) (int, error) {
					return payments.ExpireStalePaymentRequests(ctx, time.Now().UTC())
				},
			},
			{
				Name:     "retry_webhooks",
				Interval: config.WebhookInterval,
				Run:      webhooks.RetryWebhookDeliveries,
			},
		},
		locker: locker,
		ttl:    config.LockTTL,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches every job and returns immediately. Jobs stop when ctx is
// cancelled; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("starting scheduler")
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("job", job.Name).Msg("stopping job")
			return
		case <-ticker.C:
			s.Tick(ctx, job)
		}
	}
}

// Tick runs job once, under the job's lock when a Locker is configured.
func (s *Scheduler) Tick(ctx context.Context, job Job) {
	log := s.logger.With().Str("job", job.Name).Logger()

	if s.locker != nil {
		lock, err := s.locker.AcquireLock(ctx, "scheduler:"+job.Name, s.ttl)
		if errors.Is(err, cache.ErrLockHeld) {
			log.Debug().Msg("job running elsewhere, skipping tick")
			return
		}
		if err != nil {
			// Redis trouble must not stop expiry; run unlocked.
			log.Warn().Err(err).Msg("scheduler lock unavailable")
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Err(err).Msg("failed to release scheduler lock")
				}
			}()
		}
	}

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("job failed")
		return
	}
	if n > 0 {
		log.Info().Int("processed", n).Dur("took", time.Since(start)).Msg("job finished")
	}
}

// Jobs returns the configured jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}
