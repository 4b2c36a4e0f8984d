// Package normalize turns raw response bodies into the canonical payload
// shapes. The portal does not guarantee a format in advance: the same
// endpoint may answer with a JSON array, raw CSV text, or something
// unparsable, so both paths degrade to opaque wrappers instead of failing.
package normalize

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"traffic-ingester/internal/config"
	"traffic-ingester/internal/model"
)

type Normalizer struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// FromJSON decodes a body as structured JSON. The second return is false
// when the body is not valid JSON at all, signalling the caller to fall back
// to the delimited-text path. Valid JSON that is not an array becomes an
// Unexpected wrapper preserving the body.
func (n *Normalizer) FromJSON(body []byte) (model.Payload, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, false
	}
	if trimmed[0] != '[' {
		n.log.Warn("response decoded as JSON but is not a record list")
		return model.Unexpected{Body: append(json.RawMessage(nil), trimmed...)}, true
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, false
	}
	recs := make(model.Records, 0, len(elems))
	for _, el := range elems {
		rec, err := decodeObject(el)
		if err != nil {
			// Non-object array elements carry no fields; partitioning
			// counts them as skipped.
			rec = model.NewRecord()
		}
		recs = append(recs, rec)
	}
	n.log.Debug("decoded JSON response", zap.Int("records", len(recs)))
	return recs, true
}

// decodeObject parses one JSON object preserving key order, which a plain
// map[string]any unmarshal would lose.
func decodeObject(raw json.RawMessage) (*model.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, io.ErrUnexpectedEOF
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}
	rec := model.NewRecord()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		rec.Set(key, scalarString(val))
	}
	return rec, nil
}

// scalarString renders a JSON value as the record's string form: strings are
// unquoted, null becomes empty, numbers/bools/composites keep their literal
// JSON text.
func scalarString(raw json.RawMessage) string {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return ""
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			return s
		}
		return string(b)
	case 'n': // null
		return ""
	default:
		return string(b)
	}
}

// FromText parses a delimited-text body: comma separated, double-quote
// quoting, first row as headers. A missing header row, empty input, or any
// parse error yields a RawText fallback carrying the original text so a
// degraded parse stays visible instead of turning into zero rows.
func (n *Normalizer) FromText(text string, format config.Format) model.Payload {
	trimmed := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	fallback := model.RawText(trimmed)

	r := csv.NewReader(strings.NewReader(trimmed))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		n.log.Warn("delimited text is empty or has no header row")
		return fallback
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	if format == config.FormatCSV {
		// Re-serialize into a canonical form: all fields quoted, uniform
		// line terminator. Partitioning treats this as finalized.
		var buf strings.Builder
		writeQuotedRow(&buf, header)
		rows := 0
		for {
			row, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				n.log.Warn("error processing delimited response", zap.Error(err))
				return fallback
			}
			if len(row) != len(header) {
				continue
			}
			writeQuotedRow(&buf, row)
			rows++
		}
		n.log.Info("processed and cleaned CSV response", zap.Int("rows", rows))
		return model.CSVText(buf.String())
	}

	recs := model.Records{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			n.log.Warn("error processing delimited response", zap.Error(err))
			return fallback
		}
		// Rows with a mismatched column count are skipped, not flagged.
		if len(row) != len(header) {
			continue
		}
		rec := model.NewRecord()
		for i, h := range header {
			rec.Set(h, strings.TrimSpace(row[i]))
		}
		recs = append(recs, rec)
	}
	n.log.Info("processed CSV response into records", zap.Int("records", len(recs)))
	return recs
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
