package types

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mitchellh/hashstructure"
)

// Context identifies one partition of a stream, e.g. {"project_id": 42}.
// It is read-only for the duration of an extraction pass.
type Context map[string]any

// Key is the canonical encoding of the context used as the partition key in
// replication state. Map keys are encoded in sorted order so equal contexts
// always produce the same key. The empty context maps to "".
func (c Context) Key() string {
	if len(c) == 0 {
		return ""
	}
	data, err := json.Marshal(map[string]any(c))
	if err != nil {
		// values come from decoded JSON or config; fall back to fmt
		return fmt.Sprintf("%v", map[string]any(c))
	}
	return string(data)
}

// Hash is an order independent structural hash used to dedupe child partitions.
func (c Context) Hash() (uint64, error) {
	return hashstructure.Hash(map[string]any(c), nil)
}

func (c Context) Get(key string) (any, bool) {
	value, found := c[key]
	return value, found
}

// String renders a context value for use in URL paths and query params.
func (c Context) String(key string) (string, bool) {
	value, found := c[key]
	if !found || value == nil {
		return "", false
	}
	return FormatValue(value), true
}

// Merge returns a copy of c overlaid with other.
func (c Context) Merge(other Context) Context {
	merged := make(Context, len(c)+len(other))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// FormatValue renders scalars without exponent notation so float64 ids from
// decoded JSON round-trip into URLs unchanged.
func FormatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case float32:
		return FormatValue(float64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}
