package types

import (
	"strings"
	"time"
)

// Record is one decoded object produced by a stream.
type Record map[string]any

// Get resolves a dotted path such as "author.id" inside nested objects.
func (r Record) Get(path string) (any, bool) {
	if value, found := r[path]; found {
		return value, true
	}

	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// RecordEnvelope carries a record with its provenance to the destination.
type RecordEnvelope struct {
	Stream      string    `json:"stream"`
	Namespace   string    `json:"namespace,omitempty"`
	Context     Context   `json:"context,omitempty"`
	ExtractedAt time.Time `json:"time_extracted"`
	Record      Record    `json:"record"`
}

func (e RecordEnvelope) StreamID() string {
	return StreamID(e.Namespace, e.Stream)
}
