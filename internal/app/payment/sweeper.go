package payment

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/app/orders"
)

// Sweeper periodically expires pending orders that outlived their payment
// window. Expired orders can still be settled by a verified callback.
type Sweeper struct {
	orders   *orders.Manager
	maxAge   time.Duration
	interval time.Duration
	sched    gocron.Scheduler
	log      *zap.Logger
}

// NewSweeper creates a Sweeper expiring orders older than maxAge every interval.
func NewSweeper(om *orders.Manager, maxAge, interval time.Duration, log *zap.Logger) (*Sweeper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		orders:   om,
		maxAge:   maxAge,
		interval: interval,
		sched:    sched,
		log:      log.Named("sweeper"),
	}, nil
}

// Start schedules the sweep and runs it once immediately.
func (s *Sweeper) Start() error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.Sweep(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	s.sched.Start()
	s.log.Info("order sweeper started", zap.Duration("interval", s.interval), zap.Duration("max_age", s.maxAge))
	return nil
}

// Sweep expires stale orders once and returns how many changed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	n, err := s.orders.ExpireStale(ctx, s.maxAge)
	if err != nil {
		s.log.Error("order sweep failed", zap.Error(err))
		return 0
	}
	return n
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}
