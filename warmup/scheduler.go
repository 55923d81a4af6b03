// Package warmup pre-refreshes position prices on a schedule so the first
// portfolio read after a quiet period does not wait on the price source.
// Reads refresh on demand regardless; this only moves the work earlier.
package warmup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under a standard cron spec or a descriptor such as
// "@every 4m".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("Job registered")
	return nil
}

// AccountLister yields every account id.
type AccountLister interface {
	ListAccountIDs(ctx context.Context) ([]uint, error)
}

// AccountWarmer refreshes one account's stale prices.
type AccountWarmer interface {
	WarmAccount(ctx context.Context, accountID uint) error
}

// PriceWarmupJob walks all accounts and runs the refresh policy on each.
type PriceWarmupJob struct {
	accounts AccountLister
	warmer   AccountWarmer
	timeout  time.Duration
	log      zerolog.Logger
}

func NewPriceWarmupJob(accounts AccountLister, warmer AccountWarmer, timeout time.Duration, log zerolog.Logger) *PriceWarmupJob {
	return &PriceWarmupJob{
		accounts: accounts,
		warmer:   warmer,
		timeout:  timeout,
		log:      log.With().Str("job", "price-warmup").Logger(),
	}
}

func (j *PriceWarmupJob) Name() string { return "price-warmup" }

func (j *PriceWarmupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	ids, err := j.accounts.ListAccountIDs(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, id := range ids {
		if err := j.warmer.WarmAccount(ctx, id); err != nil {
			failed++
			j.log.Warn().Err(err).Uint("account", id).Msg("Warmup failed for account")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	j.log.Debug().Int("accounts", len(ids)).Int("failed", failed).Msg("Warmup pass done")
	return nil
}
