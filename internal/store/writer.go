// Package store persists fetch results as flat per-day files. Writes are
// whole-file overwrites; concurrent runs against the same directory are not
// supported.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"traffic-ingester/internal/config"
	"traffic-ingester/internal/metrics"
	"traffic-ingester/internal/model"
)

type Writer struct {
	dir    string
	format config.Format
	log    *zap.Logger
	mets   *metrics.Metrics
	now    func() time.Time
}

func NewWriter(dir string, format config.Format, log *zap.Logger, mets *metrics.Metrics) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Writer{dir: dir, format: format, log: log, mets: mets, now: time.Now}, nil
}

func (w *Writer) today() string { return w.now().Format("2006-01-02") }

func (w *Writer) countFile(dataset, kind string) {
	if w.mets != nil {
		w.mets.FilesWritten.WithLabelValues(dataset, kind).Inc()
	}
}

// SaveFull persists the complete, unpartitioned result for a dataset. It is
// written unconditionally; day partitioning never replaces it.
func (w *Writer) SaveFull(dataset string, p model.Payload) (string, error) {
	var path string
	var data []byte
	switch v := p.(type) {
	case model.CSVText:
		path = filepath.Join(w.dir, fmt.Sprintf("%s_%s.csv", dataset, w.today()))
		data = []byte(v)
	case model.RawText:
		path = filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", dataset, w.today()))
		b, err := json.MarshalIndent(struct {
			RawText string `json:"raw_text"`
		}{string(v)}, "", "  ")
		if err != nil {
			return "", err
		}
		data = b
	case model.Unexpected:
		path = filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", dataset, w.today()))
		data = indentJSON(v.Body)
	default:
		path = filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", dataset, w.today()))
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return "", err
		}
		data = b
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.log.Error("error saving dataset", zap.String("path", path), zap.Error(err))
		return "", err
	}
	w.countFile(dataset, "full")
	w.log.Info("saved dataset", zap.String("dataset", dataset), zap.String("path", path))
	return path, nil
}

// SaveDays persists one file per day bucket, or the appropriate fallback
// file when the partition is an opaque wrapper. Individual write failures
// are logged and do not abort sibling writes. Returns the number of files
// written.
func (w *Writer) SaveDays(dataset string, part model.Partition) int {
	switch v := part.(type) {
	case model.CSVText:
		// Already persisted in full by SaveFull.
		w.log.Info("CSV data already saved in main file", zap.String("dataset", dataset))
		return 0
	case model.RawText:
		return w.saveRaw(dataset, string(v))
	case model.Unexpected:
		path := filepath.Join(w.dir, fmt.Sprintf("%s_unexpected_%s.json", dataset, w.today()))
		if err := os.WriteFile(path, indentJSON(v.Body), 0o644); err != nil {
			w.log.Error("error saving unexpected format data", zap.String("path", path), zap.Error(err))
			return 0
		}
		w.countFile(dataset, "unexpected")
		w.log.Info("saved data with unexpected format", zap.String("path", path))
		return 1
	case *model.Days:
		return w.saveDayBuckets(dataset, v)
	default:
		w.log.Warn("unknown partition shape, nothing saved", zap.String("dataset", dataset))
		return 0
	}
}

func (w *Writer) saveRaw(dataset, text string) int {
	var path string
	var data []byte
	if w.format == config.FormatCSV {
		path = filepath.Join(w.dir, fmt.Sprintf("%s_raw_%s.csv", dataset, w.today()))
		data = []byte(text)
	} else {
		path = filepath.Join(w.dir, fmt.Sprintf("%s_raw_%s.json", dataset, w.today()))
		b, err := json.MarshalIndent(text, "", "  ")
		if err != nil {
			w.log.Error("error saving raw data", zap.Error(err))
			return 0
		}
		data = b
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.log.Error("error saving raw data", zap.String("path", path), zap.Error(err))
		return 0
	}
	w.countFile(dataset, "raw")
	w.log.Info("saved raw data", zap.String("path", path))
	return 1
}

func (w *Writer) saveDayBuckets(dataset string, days *model.Days) int {
	saved := 0
	for _, key := range days.Keys() {
		recs := days.Records(key)
		// Day-keys that kept a slash (non three-part dates) are sanitized
		// for the filename only.
		name := strings.ReplaceAll(key, "/", "-")
		var path string
		var data []byte
		if w.format == config.FormatCSV {
			if len(recs) == 0 {
				// No first record to derive the header from.
				w.log.Warn("no data to save for day", zap.String("day", key))
				continue
			}
			path = filepath.Join(w.dir, fmt.Sprintf("%s_%s.csv", dataset, name))
			data = []byte(recordsCSV(recs))
		} else {
			path = filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", dataset, name))
			b, err := json.MarshalIndent(recs, "", "  ")
			if err != nil {
				w.log.Error("error marshaling day data", zap.String("day", key), zap.Error(err))
				continue
			}
			data = b
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			w.log.Error("error saving day data", zap.String("path", path), zap.Error(err))
			continue
		}
		w.countFile(dataset, "day")
		saved++
	}
	if saved > 0 {
		w.log.Info("saved daily data files",
			zap.String("dataset", dataset), zap.Int("files", saved))
	}
	return saved
}

// recordsCSV serializes a day bucket as header-plus-rows CSV. Column order
// comes from the first record's field order; all fields are quoted.
func recordsCSV(recs []*model.Record) string {
	header := recs[0].Fields()
	var buf strings.Builder
	writeQuotedRow(&buf, header)
	for _, rec := range recs {
		row := make([]string, len(header))
		for i, h := range header {
			row[i], _ = rec.Get(h)
		}
		writeQuotedRow(&buf, row)
	}
	return buf.String()
}

func writeQuotedRow(buf *strings.Builder, row []string) {
	for i, f := range row {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

func indentJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}
