package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/perishables/internal/clock"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/smallbiznis/perishables/internal/locks"
	obsmetrics "github.com/smallbiznis/perishables/internal/observability/metrics"
	"github.com/smallbiznis/perishables/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Publisher fans sweep results out to every realtime node.
type Publisher interface {
	PublishExpiryAlert(ctx context.Context, storeID string, alert realtime.ExpiryAlert) error
	PublishKPIUpdate(ctx context.Context, storeID string, kpis realtime.KPIUpdate) error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Inventory inventorydomain.Service
	Publisher Publisher
	Locker    *locks.Locker       `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Config    Config              `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	genID     *snowflake.Node
	inventory inventorydomain.Service
	publisher Publisher
	locker    *locks.Locker
	metrics   *obsmetrics.Metrics
	cron      *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Inventory == nil || p.Publisher == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	schedule, err := cron.ParseStandard(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidConfig, cfg.Cron, err)
	}

	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	clog := cronLogger{log: log.Sugar()}
	s := &Scheduler{
		log:       log,
		cfg:       cfg,
		clock:     p.Clock,
		genID:     p.GenID,
		inventory: p.Inventory,
		publisher: p.Publisher,
		locker:    p.Locker,
		metrics:   p.Metrics,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}))
	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info("starting scheduler", zap.String("cron", s.cfg.Cron))
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.log.Info("stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, "expiry_sweep", s.cfg.JobTimeout, s.ExpirySweepJob)
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	s.logJobStart(ctx)

	err := fn(ctx)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	if err == nil {
		s.metrics.RecordSweep(obsmetrics.SweepSuccess)
		return nil
	}
	s.metrics.RecordSweep(obsmetrics.SweepFailure)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
