// Package partition groups normalized records into calendar-day buckets
// keyed by their datum field.
package partition

import (
	"strings"

	"go.uber.org/zap"

	"traffic-ingester/internal/metrics"
	"traffic-ingester/internal/model"
)

// DatumField is the logical date field every classifiable record must carry.
const DatumField = "datum"

type Partitioner struct {
	log  *zap.Logger
	mets *metrics.Metrics
}

func New(log *zap.Logger, mets *metrics.Metrics) *Partitioner {
	return &Partitioner{log: log, mets: mets}
}

// ByDay groups a payload's records by day-key, preserving first-seen key
// order and per-key insertion order. Payloads that are not classifiable
// record lists pass through unchanged. Records without a usable datum are
// dropped from the result; the drop count is reported through logging and
// metrics, not through the returned data.
func (p *Partitioner) ByDay(dataset string, payload model.Payload) model.Partition {
	recs, ok := payload.(model.Records)
	if !ok {
		switch payload.(type) {
		case model.RawText, model.CSVText:
			p.log.Warn("payload is text data, cannot organize by day",
				zap.String("dataset", dataset))
		}
		return payload.(model.Partition)
	}

	days := model.NewDays()
	for _, rec := range recs {
		datum, ok := rec.Get(DatumField)
		if !ok || strings.TrimSpace(datum) == "" {
			p.log.Debug("record missing datum field", zap.String("dataset", dataset))
			days.Skipped++
			continue
		}
		days.Append(DayKey(datum), rec)
	}

	if days.Skipped > 0 {
		p.log.Warn("skipped records due to missing or invalid data",
			zap.String("dataset", dataset), zap.Int("skipped", days.Skipped))
	}
	if p.mets != nil {
		p.mets.RecordsPartitioned.WithLabelValues(dataset).Add(float64(days.Total()))
		p.mets.RecordsSkipped.WithLabelValues(dataset).Add(float64(days.Skipped))
	}
	p.log.Info("organized records by day",
		zap.String("dataset", dataset), zap.Int("days", len(days.Keys())))
	return days
}

// DayKey derives the partition key from a raw datum value: the text before
// the first space, with a three-component slash date re-joined by dashes.
// This is a separator substitution only; month/day/year order is kept as
// sent, because the upstream field order is not known.
func DayKey(datum string) string {
	s := strings.TrimSpace(datum)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	if strings.Contains(s, "/") {
		if parts := strings.Split(s, "/"); len(parts) == 3 {
			s = strings.Join(parts, "-")
		}
	}
	return s
}
