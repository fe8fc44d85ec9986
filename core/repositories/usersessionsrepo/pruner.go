package usersessionsrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jrazmi/taskdeck/sdk/environment"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// sweepTimeout bounds a single pruning pass.
const sweepTimeout = 30 * time.Second

// PrunerOptions is the exportable pruning configuration.
type PrunerOptions struct {
	Interval time.Duration `env:"SESSION_PRUNE_INTERVAL" default:"1h"`
}

// PrunerOption is a function that configures the pruner.
type PrunerOption func(*Pruner)

// WithPrunerClock replaces the time source. Intended for tests.
func WithPrunerClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) {
		p.now = now
	}
}

// Pruner periodically deletes session rows whose expiry has passed. Expired
// sessions can no longer authenticate, so pruning only reclaims storage;
// their cache entries expire on their own TTL.
type Pruner struct {
	log      *logger.Logger
	repo     *Repository
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPrunerFromEnv creates a pruner using environment variables.
func NewPrunerFromEnv(prefix string, log *logger.Logger, repo *Repository, opts ...PrunerOption) (*Pruner, error) {
	var cfg PrunerOptions
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing session pruner config: %w", err)
	}
	return NewPruner(log, repo, cfg.Interval, opts...), nil
}

// NewPruner starts the pruning loop. Stop must be called to end it.
func NewPruner(log *logger.Logger, repo *Repository, interval time.Duration, opts ...PrunerOption) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pruner{
		log:      log,
		repo:     repo,
		interval: interval,
		now:      time.Now,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	go p.run(ctx)
	return p
}

// Stop ends the pruning loop and waits for an in-flight sweep to finish.
func (p *Pruner) Stop() {
	p.cancel()
	<-p.done
}

func (p *Pruner) run(ctx context.Context) {
	defer close(p.done)

	// Sweep once at startup to clear whatever expired while the process was
	// down, then on every tick.
	p.sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Pruner) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if _, err := p.repo.DeleteExpired(ctx, p.now()); err != nil {
		p.log.ErrorContext(ctx, "pruning expired sessions", "error", err)
	}
}
