// Package pulse runs the heartbeat that keeps the physiology moving while
// nothing else touches it.
package pulse

import (
	"context"
	"log/slog"
	"time"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/regulator"
	"github.com/lazypower/homeostat/internal/telemetry"
)

// DefaultInterval is the heartbeat period.
const DefaultInterval = 10 * time.Second

// Checkpointer is the part of checkpoint.Manager the loop uses.
type Checkpointer interface {
	Beat() bool
	Save(now time.Time) (checkpoint.Report, error)
}

// Sleeper runs a consolidation. *regulator.Regulator satisfies it.
type Sleeper interface {
	Sleep(ctx context.Context) (regulator.SleepReport, error)
}

// Loop ticks the engine on a fixed interval. Checkpoints and Sleeper are
// optional.
type Loop struct {
	Engine      *engine.Engine
	Checkpoints Checkpointer
	Sleeper     Sleeper
	Interval    time.Duration
	// SleepPressure triggers Sleeper once fatigue reaches it. Zero disables.
	SleepPressure float64
	Now           func() time.Time
}

// BeatResult reports what one beat did.
type BeatResult struct {
	Elapsed    float64
	Checkpoint bool
	Slept      bool
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Run beats once immediately and then every Interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	slog.Info("pulse started", "interval", interval)

	l.Beat(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Beat(ctx)
		case <-ctx.Done():
			if err := l.Engine.Flush(); err != nil {
				slog.Warn("final flush failed", "err", err)
			}
			slog.Info("pulse stopped")
			return nil
		}
	}
}

// Beat runs one heartbeat: tick, then checkpoint when due, then sleep when
// fatigue has built up.
func (l *Loop) Beat(ctx context.Context) BeatResult {
	now := l.now()
	res := BeatResult{Elapsed: l.Engine.Tick(now)}

	if l.Checkpoints != nil && l.Checkpoints.Beat() {
		if err := l.Engine.Flush(); err != nil {
			slog.Warn("flush before checkpoint failed", "err", err)
		}
		rep, err := l.Checkpoints.Save(now)
		telemetry.RecordCheckpoint("save", len(rep.Failed), err)
		switch {
		case err != nil:
			slog.Error("checkpoint failed", "err", err)
		case len(rep.Failed) > 0:
			slog.Warn("checkpoint incomplete", "checkpoint", rep.Checkpoint, "failed", rep.Failed)
			res.Checkpoint = true
		default:
			slog.Debug("checkpoint saved", "checkpoint", rep.Checkpoint, "files", len(rep.Copied))
			res.Checkpoint = true
		}
	}

	if l.Sleeper != nil && l.SleepPressure > 0 {
		if fatigue := l.Engine.State().Fatigue; fatigue >= l.SleepPressure {
			slog.Info("sleep pressure reached", "fatigue", fatigue)
			if _, err := l.Sleeper.Sleep(ctx); err != nil {
				slog.Error("sleep failed", "err", err)
			} else {
				res.Slept = true
			}
		}
	}
	return res
}
