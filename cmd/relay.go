package cmd

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/minerctl/internal/events"
	"github.com/xkilldash9x/minerctl/internal/miner"
	"github.com/xkilldash9x/minerctl/internal/observability"
)

// sampleRecorder persists page events. *store.Store implements it.
type sampleRecorder interface {
	RecordUpdate(ctx context.Context, controllerID string, u miner.Update) error
	RecordEvent(ctx context.Context, controllerID string, ev events.Event) error
}

// relay forwards controller events to metrics, the store and the log.
type relay struct {
	controllerID string
	logger       *zap.Logger
	metrics      *observability.Metrics
	recorder     sampleRecorder // optional
	updateLog    *rate.Limiter
}

func (r *relay) run(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *relay) handle(ctx context.Context, ev events.Event) {
	if r.metrics != nil {
		r.metrics.RecordEvent(ev.Name)
	}

	if ev.Name != miner.EventUpdate {
		r.logger.Info("Miner event.", zap.String("event", ev.Name), zap.Any("args", rawArgs(ev.Args)))
		if r.recorder != nil {
			if err := r.recorder.RecordEvent(ctx, r.controllerID, ev); err != nil {
				r.logger.Warn("Failed to store event.", zap.String("event", ev.Name), zap.Error(err))
			}
		}
		return
	}

	u, err := miner.DecodeUpdate(ev)
	if err != nil {
		r.logger.Warn("Ignoring malformed update.", zap.Error(err))
		return
	}
	if r.metrics != nil {
		r.metrics.RecordUpdate(u.Data.HashesPerSecond, u.Data.TotalHashes, u.Data.AcceptedHashes, u.Data.Threads)
	}
	if r.recorder != nil {
		if err := r.recorder.RecordUpdate(ctx, r.controllerID, u); err != nil {
			r.logger.Warn("Failed to store update.", zap.Error(err))
		}
	}
	if r.updateLog == nil || r.updateLog.Allow() {
		r.logger.Info("Miner update.",
			zap.Float64("hashes_per_second", u.Data.HashesPerSecond),
			zap.Int64("total_hashes", u.Data.TotalHashes),
			zap.Int64("accepted_hashes", u.Data.AcceptedHashes),
			zap.Int("threads", u.Data.Threads),
			zap.Bool("running", u.Data.Running))
	}
}

// rawArgs keeps event arguments readable in JSON and console logs.
func rawArgs(args []json.RawMessage) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}
