package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fusen-app/fusen/internal/services"
	"github.com/fusen-app/fusen/pkg/logger"
)

const (
	defaultSchedule  = "@daily"
	defaultRetention = 30 * 24 * time.Hour
)

// Cleaner runs background maintenance: purging invitations that expired
// long enough ago that nobody will redeem or inspect them.
type Cleaner struct {
	invites   *services.InviteService
	cron      *cron.Cron
	log       *zap.Logger
	schedule  string
	retention time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron expression for invitation cleanup.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithRetention adjusts how long expired invitations are kept before removal.
func WithRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.retention = retention
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(invites *services.InviteService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invites:   invites,
		schedule:  defaultSchedule,
		retention: defaultRetention,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.invites == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("invitation cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the cleanup routine immediately. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if c.invites == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	purged, err := c.invites.PurgeExpired(ctx, c.retention)
	if err != nil {
		return err
	}
	if purged > 0 {
		c.log.Info("purged expired invitations", zap.Int64("count", purged))
	}
	return nil
}
