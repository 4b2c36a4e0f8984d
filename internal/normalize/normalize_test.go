package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"traffic-ingester/internal/config"
	"traffic-ingester/internal/model"
)

func newNorm() *Normalizer { return New(zap.NewNop()) }

func TestFromJSONArrayPreservesOrder(t *testing.T) {
	body := []byte(`[
		{"pkw": 1200, "datum": "2024-05-01 14:30:00", "ID": 1},
		{"pkw": 900, "datum": "2024-05-02 08:00:00", "ID": 2}
	]`)
	p, ok := newNorm().FromJSON(body)
	require.True(t, ok)
	recs, isRecs := p.(model.Records)
	require.True(t, isRecs)
	require.Len(t, recs, 2)

	assert.Equal(t, []string{"pkw", "datum", "ID"}, recs[0].Fields())
	v, _ := recs[0].Get("pkw")
	assert.Equal(t, "1200", v, "numbers keep their literal form")
	v, _ = recs[1].Get("datum")
	assert.Equal(t, "2024-05-02 08:00:00", v)
}

func TestFromJSONNonArrayIsUnexpected(t *testing.T) {
	p, ok := newNorm().FromJSON([]byte(`{"error": "nope"}`))
	require.True(t, ok)
	u, isU := p.(model.Unexpected)
	require.True(t, isU)
	assert.JSONEq(t, `{"error": "nope"}`, string(u.Body))
}

func TestFromJSONInvalidSignalsFallback(t *testing.T) {
	p, ok := newNorm().FromJSON([]byte("pkw,datum,ID\n1,2024-05-01,3\n"))
	assert.False(t, ok)
	assert.Nil(t, p)
}

func TestFromJSONNonObjectElementsBecomeEmptyRecords(t *testing.T) {
	p, ok := newNorm().FromJSON([]byte(`[{"datum":"2024-05-01"}, "stray", 7]`))
	require.True(t, ok)
	recs := p.(model.Records)
	require.Len(t, recs, 3)
	assert.Equal(t, 1, recs[0].Len())
	assert.Equal(t, 0, recs[1].Len())
	assert.Equal(t, 0, recs[2].Len())
}

func TestFromTextToRecords(t *testing.T) {
	text := "pkw,datum,ID\n\"1200\",\"2024-05-01 14:30:00\",\"1\"\n900,2024-05-02,2\n"
	p := newNorm().FromText(text, config.FormatJSON)
	recs, ok := p.(model.Records)
	require.True(t, ok)
	require.Len(t, recs, 2)

	v, _ := recs[0].Get("datum")
	assert.Equal(t, "2024-05-01 14:30:00", v)
	v, _ = recs[1].Get("pkw")
	assert.Equal(t, "900", v)
}

func TestFromTextSkipsMismatchedRows(t *testing.T) {
	text := "a,b,c\n1,2,3\n1,2\n4,5,6\n"
	p := newNorm().FromText(text, config.FormatJSON)
	recs, ok := p.(model.Records)
	require.True(t, ok)
	assert.Len(t, recs, 2, "rows with the wrong column count are dropped")
}

func TestFromTextEmptyInputFallsBackToRawText(t *testing.T) {
	for _, in := range []string{"", "   \n  ", "\ufeff"} {
		p := newNorm().FromText(in, config.FormatJSON)
		_, ok := p.(model.RawText)
		assert.True(t, ok, "empty input must degrade visibly, not become zero records")
	}
}

func TestFromTextHeaderOnlyYieldsEmptyRecords(t *testing.T) {
	// Normalization still reports the shape; the orchestrator treats a
	// zero-length record list as a no-data outcome, never as a success.
	p := newNorm().FromText("a,b,c\n", config.FormatJSON)
	recs, ok := p.(model.Records)
	require.True(t, ok)
	assert.Len(t, recs, 0)
}

func TestFromTextCSVFormatCanonicalizes(t *testing.T) {
	text := "pkw,datum\n1200,2024-05-01\n\"90,0\",2024-05-02\n"
	p := newNorm().FromText(text, config.FormatCSV)
	csvText, ok := p.(model.CSVText)
	require.True(t, ok)
	assert.Equal(t, "\"pkw\",\"datum\"\n\"1200\",\"2024-05-01\"\n\"90,0\",\"2024-05-02\"\n", string(csvText))
}

func TestFromTextCanonicalCSVReparses(t *testing.T) {
	text := "pkw,datum\n1200,2024-05-01\n900,2024-05-02\n"
	n := newNorm()
	canonical := n.FromText(text, config.FormatCSV)
	csvText, ok := canonical.(model.CSVText)
	require.True(t, ok)

	reparsed := n.FromText(string(csvText), config.FormatJSON)
	recs, ok := reparsed.(model.Records)
	require.True(t, ok)
	require.Len(t, recs, 2)
	v, _ := recs[0].Get("pkw")
	assert.Equal(t, "1200", v)
}
