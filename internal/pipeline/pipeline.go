// Package pipeline sequences fetch, normalize, partition, and persist across
// the configured datasets.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"traffic-ingester/internal/model"
	"traffic-ingester/internal/partition"
	"traffic-ingester/internal/store"
)

// Fetcher retrieves and normalizes one named dataset.
type Fetcher interface {
	Fetch(ctx context.Context, dataset string) (model.Payload, error)
}

// Summary reports how many datasets succeeded out of the batch.
type Summary struct {
	Succeeded int
	Total     int
}

// OK is true iff at least one dataset succeeded.
func (s Summary) OK() bool { return s.Succeeded > 0 }

type Orchestrator struct {
	fetcher Fetcher
	part    *partition.Partitioner
	writer  *store.Writer
	pause   time.Duration
	log     *zap.Logger
}

func New(fetcher Fetcher, part *partition.Partitioner, writer *store.Writer, pause time.Duration, log *zap.Logger) *Orchestrator {
	if pause <= 0 {
		pause = 2 * time.Second
	}
	return &Orchestrator{fetcher: fetcher, part: part, writer: writer, pause: pause, log: log}
}

// Run processes datasets strictly in order. A failed dataset is logged and
// the batch continues; no error escapes the per-dataset boundary. A fixed
// inter-dataset pause bounds the request rate against the portal. Only
// context cancellation aborts the batch early.
func (o *Orchestrator) Run(ctx context.Context, datasets []string) Summary {
	sum := Summary{Total: len(datasets)}
	for i, dataset := range datasets {
		if i > 0 {
			select {
			case <-time.After(o.pause):
			case <-ctx.Done():
				o.log.Info("run cancelled", zap.Error(ctx.Err()))
				return sum
			}
		}
		if ctx.Err() != nil {
			o.log.Info("run cancelled", zap.Error(ctx.Err()))
			return sum
		}

		payload, err := o.fetcher.Fetch(ctx, dataset)
		if err != nil {
			o.log.Warn("no data available for dataset",
				zap.String("dataset", dataset), zap.Error(err))
			continue
		}
		// A well-formed but empty result counts as no data: it is not a
		// success and nothing is written for it.
		if emptyPayload(payload) {
			o.log.Warn("no data available for dataset", zap.String("dataset", dataset))
			continue
		}
		sum.Succeeded++

		// The full result is persisted unconditionally; partitioning never
		// replaces it.
		if _, err := o.writer.SaveFull(dataset, payload); err != nil {
			o.log.Error("failed to save dataset",
				zap.String("dataset", dataset), zap.Error(err))
		}
		part := o.part.ByDay(dataset, payload)
		o.writer.SaveDays(dataset, part)
	}
	o.log.Info("completed data scraping",
		zap.Int("succeeded", sum.Succeeded), zap.Int("total", sum.Total))
	return sum
}

func emptyPayload(p model.Payload) bool {
	switch v := p.(type) {
	case model.Records:
		return len(v) == 0
	case model.RawText:
		return v == ""
	case model.CSVText:
		return v == ""
	}
	return p == nil
}
