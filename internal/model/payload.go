package model

import "encoding/json"

// Payload is the normalized shape of a fetched response body. The remote
// endpoint does not guarantee a format, so downstream stages branch on the
// concrete variant instead of re-inspecting bytes.
type Payload interface{ payload() }

// Records is a structured result: one Record per row, in response order.
type Records []*Record

// RawText wraps a body that could not be parsed into records. The original
// text is preserved for manual inspection.
type RawText string

// CSVText wraps an already re-serialized canonical CSV body. Partitioning
// treats it as finalized output.
type CSVText string

// Unexpected wraps a response that decoded as JSON but is not a list of
// records (e.g. a top-level object). The body is kept verbatim.
type Unexpected struct {
	Body json.RawMessage
}

func (Records) payload() {}
func (RawText) payload() {}
func (CSVText) payload() {}
func (Unexpected) payload() {}
