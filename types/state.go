package types

import (
	"fmt"
	"sync"
	"time"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/utils/typeutils"
	"github.com/goccy/go-json"
)

type StateType string

const (
	// Per stream partition cursors
	StreamType StateType = "STREAM"
)

// State is the persisted replication document:
//
//	{"type":"STREAM","version":1,"streams":[{"stream":"issues","namespace":"gitlab",
//	  "partitions":{"{\"project_id\":1}":{"context":{"project_id":1},"cursor":"2024-01-01T00:00:00Z"}}}]}
type State struct {
	*sync.RWMutex `json:"-"`
	Type          StateType      `json:"type"`
	Version       int            `json:"version,omitempty"`
	Streams       []*StreamState `json:"streams"`
}

type StreamState struct {
	Stream     string                     `json:"stream"`
	Namespace  string                     `json:"namespace,omitempty"`
	Partitions map[string]*PartitionState `json:"partitions"`
}

type PartitionState struct {
	Context   Context   `json:"context,omitempty"`
	Cursor    any       `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewState() *State {
	return &State{
		RWMutex: &sync.RWMutex{},
		Type:    StreamType,
		Version: constants.LatestStateVersion,
		Streams: []*StreamState{},
	}
}

func (s *StreamState) ID() string {
	return StreamID(s.Namespace, s.Stream)
}

func (s *State) isZero() bool {
	return len(s.Streams) == 0
}

func (s *State) ResetStreams() {
	s.Lock()
	defer s.Unlock()

	s.Streams = []*StreamState{}
}

func (s *State) find(streamID string) *StreamState {
	for _, stream := range s.Streams {
		if stream.ID() == streamID {
			return stream
		}
	}
	return nil
}

// GetCursor returns the cursor persisted for a stream partition, nil if none.
func (s *State) GetCursor(streamID, partitionKey string) any {
	s.RLock()
	defer s.RUnlock()

	stream := s.find(streamID)
	if stream == nil {
		return nil
	}
	partition, found := stream.Partitions[partitionKey]
	if !found {
		return nil
	}
	return partition.Cursor
}

// SetCursor records value for the partition if it does not move the cursor
// backwards. Returns whether the stored value changed.
func (s *State) SetCursor(streamID string, partition Context, value any) bool {
	if value == nil {
		return false
	}

	s.Lock()
	defer s.Unlock()

	stream := s.find(streamID)
	if stream == nil {
		namespace, name := SplitStreamID(streamID)
		stream = &StreamState{Stream: name, Namespace: namespace}
		s.Streams = append(s.Streams, stream)
	}
	if stream.Partitions == nil {
		stream.Partitions = make(map[string]*PartitionState)
	}

	key := partition.Key()
	existing, found := stream.Partitions[key]
	if found && typeutils.Compare(value, existing.Cursor) < 0 {
		return false
	}

	stream.Partitions[key] = &PartitionState{
		Context:   partition,
		Cursor:    typeutils.FormatCursorValue(value),
		UpdatedAt: time.Now().UTC(),
	}
	return true
}

// ResetStream drops every partition cursor of a stream.
func (s *State) ResetStream(streamID string) {
	s.Lock()
	defer s.Unlock()

	for idx, stream := range s.Streams {
		if stream.ID() == streamID {
			s.Streams = append(s.Streams[:idx], s.Streams[idx+1:]...)
			return
		}
	}
}

func (s *State) MarshalJSON() ([]byte, error) {
	if s.RWMutex != nil {
		s.RLock()
		defer s.RUnlock()
	}

	type Alias State
	populated := []*StreamState{}
	for _, stream := range s.Streams {
		if len(stream.Partitions) > 0 {
			populated = append(populated, stream)
		}
	}

	return json.Marshal(&struct {
		*Alias
		Streams []*StreamState `json:"streams"`
	}{
		Alias:   (*Alias)(s),
		Streams: populated,
	})
}

func (s *State) UnmarshalJSON(data []byte) error {
	type Alias State
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if s.RWMutex == nil {
		s.RWMutex = &sync.RWMutex{}
	}
	if s.Type == "" {
		s.Type = StreamType
	}
	if s.Streams == nil {
		s.Streams = []*StreamState{}
	}
	if s.Version > constants.LatestStateVersion {
		return fmt.Errorf("state version %d is newer than the supported version %d", s.Version, constants.LatestStateVersion)
	}
	return nil
}
