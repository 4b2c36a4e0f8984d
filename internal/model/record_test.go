package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPreservesInsertionOrder(t *testing.T) {
	r := NewRecord()
	r.Set("pkw", "1200")
	r.Set("datum", "2024-05-01 14:30:00")
	r.Set("ID", "42")

	assert.Equal(t, []string{"pkw", "datum", "ID"}, r.Fields())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"pkw":"1200","datum":"2024-05-01 14:30:00","ID":"42"}`, string(b))
}

func TestRecordSetOverwritesWithoutReordering(t *testing.T) {
	r := NewRecord()
	r.Set("a", "1")
	r.Set("b", "2")
	r.Set("a", "3")

	assert.Equal(t, []string{"a", "b"}, r.Fields())
	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestDaysOrderAndTotals(t *testing.T) {
	d := NewDays()
	r1, r2, r3 := NewRecord(), NewRecord(), NewRecord()
	d.Append("2024-05-02", r1)
	d.Append("2024-05-01", r2)
	d.Append("2024-05-02", r3)

	assert.Equal(t, []string{"2024-05-02", "2024-05-01"}, d.Keys())
	assert.Equal(t, []*Record{r1, r3}, d.Records("2024-05-02"))
	assert.Equal(t, 3, d.Total())
}
