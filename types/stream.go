package types

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Stream is a named REST resource declared at configuration time.
type Stream struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	// JSON schema of one record; empty when the source does not declare one
	Schema                  map[string]any  `json:"json_schema,omitempty"`
	SupportedSyncModes      *Set[SyncMode]  `json:"supported_sync_modes,omitempty"`
	SourceDefinedPrimaryKey *Set[string]    `json:"source_defined_primary_key,omitempty"`
	AvailableCursorFields   *Set[string]    `json:"available_cursor_fields,omitempty"`
	ReplicationKey          string          `json:"replication_key,omitempty"`
	Parent                  string          `json:"parent,omitempty"`
	SyncMode                SyncMode        `json:"sync_mode,omitempty"`    // Mode being used
	CursorField             string          `json:"cursor_field,omitempty"` // Overrides ReplicationKey when set
	AdditionalProperties    json.RawMessage `json:"additional_properties,omitempty"`
}

func NewStream(name, namespace string) *Stream {
	return &Stream{
		Name:                    name,
		Namespace:               namespace,
		SupportedSyncModes:      NewSet[SyncMode](),
		SourceDefinedPrimaryKey: NewSet[string](),
		AvailableCursorFields:   NewSet[string](),
		SyncMode:                FULLREFRESH,
	}
}

// StreamID joins namespace and name the way every state document refers to a stream.
func StreamID(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", namespace, name)
}

// SplitStreamID is the inverse of StreamID for ids produced by it.
func SplitStreamID(id string) (namespace, name string) {
	namespace, name, found := strings.Cut(id, ".")
	if !found {
		return "", id
	}
	return namespace, name
}

func (s *Stream) ID() string {
	return StreamID(s.Namespace, s.Name)
}

func (s *Stream) WithSyncMode(modes ...SyncMode) *Stream {
	s.SupportedSyncModes.Insert(modes...)
	return s
}

func (s *Stream) WithPrimaryKey(keys ...string) *Stream {
	s.SourceDefinedPrimaryKey.Insert(keys...)
	return s
}

func (s *Stream) WithCursorField(columns ...string) *Stream {
	s.AvailableCursorFields.Insert(columns...)
	return s
}

// WithReplicationKey marks the field used to order incremental fetches and
// enables incremental sync for the stream.
func (s *Stream) WithReplicationKey(key string) *Stream {
	if key == "" {
		return s
	}
	s.ReplicationKey = key
	s.WithCursorField(key)
	s.WithSyncMode(INCREMENTAL)
	return s
}

func (s *Stream) WithSchema(schema map[string]any) *Stream {
	s.Schema = schema
	return s
}

func (s *Stream) WithParent(parent string) *Stream {
	s.Parent = parent
	return s
}

func (s *Stream) Wrap() *ConfiguredStream {
	return &ConfiguredStream{
		Stream: s,
	}
}

func (s *Stream) UnmarshalJSON(data []byte) error {
	// use alias to avoid infinite recursion
	type Alias Stream
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// to prevent nil pointer panics later
	if s.AvailableCursorFields == nil {
		s.AvailableCursorFields = NewSet[string]()
	}
	if s.SourceDefinedPrimaryKey == nil {
		s.SourceDefinedPrimaryKey = NewSet[string]()
	}
	if s.SupportedSyncModes == nil {
		s.SupportedSyncModes = NewSet[SyncMode]()
	}
	if s.SyncMode == "" {
		s.SyncMode = FULLREFRESH
	}

	return nil
}

func StreamsToMap(streams ...*Stream) map[string]*Stream {
	output := make(map[string]*Stream, len(streams))
	for _, stream := range streams {
		output[stream.ID()] = stream
	}

	return output
}
