package types

import (
	"fmt"
)

// Input/Processed object for Stream
type ConfiguredStream struct {
	Stream *Stream `json:"stream,omitempty"`

	// Field used as the replication cursor; MUST NOT BE mutated during a run
	CursorField string `json:"cursor_field,omitempty"`
}

func (s *ConfiguredStream) ID() string {
	return s.Stream.ID()
}

func (s *ConfiguredStream) Self() *ConfiguredStream {
	return s
}

func (s *ConfiguredStream) Name() string {
	return s.Stream.Name
}

func (s *ConfiguredStream) GetStream() *Stream {
	return s.Stream
}

func (s *ConfiguredStream) Namespace() string {
	return s.Stream.Namespace
}

func (s *ConfiguredStream) Schema() map[string]any {
	return s.Stream.Schema
}

func (s *ConfiguredStream) Parent() string {
	return s.Stream.Parent
}

func (s *ConfiguredStream) SupportedSyncModes() *Set[SyncMode] {
	return s.Stream.SupportedSyncModes
}

func (s *ConfiguredStream) GetSyncMode() SyncMode {
	return s.Stream.SyncMode
}

// Cursor returns the replication key in effect, empty for full refresh.
func (s *ConfiguredStream) Cursor() string {
	if s.Stream.SyncMode != INCREMENTAL {
		return ""
	}
	if s.CursorField != "" {
		return s.CursorField
	}
	if s.Stream.CursorField != "" {
		return s.Stream.CursorField
	}
	return s.Stream.ReplicationKey
}

// Validate Configured Stream with Source Stream
func (s *ConfiguredStream) Validate(source *Stream) error {
	if !source.SupportedSyncModes.Exists(s.Stream.SyncMode) {
		return fmt.Errorf("invalid sync mode[%s]; valid are %v", s.Stream.SyncMode, source.SupportedSyncModes)
	}

	if s.Stream.SyncMode == INCREMENTAL {
		cursor := s.Cursor()
		if cursor == "" {
			cursor = source.ReplicationKey
		}
		if !source.AvailableCursorFields.Exists(cursor) {
			return fmt.Errorf("invalid cursor field [%s]; valid are %v", cursor, source.AvailableCursorFields)
		}
	}

	if diff := s.Stream.SourceDefinedPrimaryKey.Difference(source.SourceDefinedPrimaryKey); diff.Len() > 0 {
		return fmt.Errorf("difference found with primary keys: %v", diff.Array())
	}

	return nil
}
