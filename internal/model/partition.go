package model

// Partition is the result of grouping a payload by calendar day. Payload
// variants that cannot be grouped (raw text, finalized CSV, unexpected JSON)
// pass through unchanged.
type Partition interface{ partition() }

// Days maps day-keys to their records, preserving first-seen key order and
// per-key insertion order. Skipped counts records dropped for a missing or
// empty datum field.
type Days struct {
	keys    []string
	groups  map[string][]*Record
	Skipped int
}

func NewDays() *Days {
	return &Days{groups: make(map[string][]*Record)}
}

func (d *Days) Append(key string, rec *Record) {
	if _, ok := d.groups[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.groups[key] = append(d.groups[key], rec)
}

// Keys returns the day-keys in first-seen order.
func (d *Days) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *Days) Records(key string) []*Record { return d.groups[key] }

// Total is the number of records across all day buckets.
func (d *Days) Total() int {
	n := 0
	for _, g := range d.groups {
		n += len(g)
	}
	return n
}

func (*Days) partition() {}
func (RawText) partition() {}
func (CSVText) partition() {}
func (Unexpected) partition() {}
