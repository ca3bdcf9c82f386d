package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/types"
	"github.com/goccy/go-json"
)

const Type destination.Type = "stdout"

type schemaMessage struct {
	Type               types.MessageType `json:"type"`
	Stream             string            `json:"stream"`
	Schema             map[string]any    `json:"schema"`
	KeyProperties      []string          `json:"key_properties"`
	BookmarkProperties []string          `json:"bookmark_properties,omitempty"`
}

type recordMessage struct {
	Type          types.MessageType `json:"type"`
	Stream        string            `json:"stream"`
	Record        types.Record      `json:"record"`
	TimeExtracted time.Time         `json:"time_extracted"`
}

type stateMessage struct {
	Type  types.MessageType `json:"type"`
	Value *types.State      `json:"value"`
}

// shared by every thread, stdout carries one interleaved message stream
var (
	outMu         sync.Mutex
	out           io.Writer = os.Stdout
	schemaEmitted           = map[string]bool{}
)

// SetOutput redirects the message stream and forgets emitted schemas.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
	schemaEmitted = map[string]bool{}
}

// Stdout writes Singer style SCHEMA, RECORD and STATE messages, one JSON
// document per line.
type Stdout struct {
	config *Config
	stream types.StreamInterface
}

func (s *Stdout) GetConfigRef() destination.Config {
	s.config = &Config{}
	return s.config
}

func (s *Stdout) Spec() any {
	return Config{}
}

func (s *Stdout) Type() string {
	return string(Type)
}

func (s *Stdout) Check(_ context.Context) error {
	return nil
}

func (s *Stdout) Setup(stream types.StreamInterface, _ *destination.Options) error {
	s.stream = stream
	if s.config.SkipSchema {
		return nil
	}

	outMu.Lock()
	defer outMu.Unlock()
	if schemaEmitted[stream.ID()] {
		return nil
	}
	keys := []string{}
	if pk := stream.GetStream().SourceDefinedPrimaryKey; pk != nil {
		keys = pk.Array()
	}
	message := schemaMessage{
		Type:          types.SchemaMessage,
		Stream:        stream.ID(),
		Schema:        stream.Schema(),
		KeyProperties: keys,
	}
	if cursor := stream.Cursor(); cursor != "" {
		message.BookmarkProperties = []string{cursor}
	}
	if err := writeLine(message); err != nil {
		return err
	}
	schemaEmitted[stream.ID()] = true
	return nil
}

func (s *Stdout) Write(ctx context.Context, records []types.RecordEnvelope) error {
	outMu.Lock()
	defer outMu.Unlock()
	for _, envelope := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeLine(recordMessage{
			Type:          types.RecordMessage,
			Stream:        envelope.StreamID(),
			Record:        envelope.Record,
			TimeExtracted: envelope.ExtractedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stdout) WriteState(_ context.Context, state *types.State) error {
	if s.config != nil && s.config.SkipState {
		return nil
	}
	outMu.Lock()
	defer outMu.Unlock()
	return writeLine(stateMessage{Type: types.StateMessage, Value: state})
}

func (s *Stdout) Close(_ context.Context) error {
	return nil
}

// caller holds outMu
func writeLine(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %s", message, err)
	}
	data = append(data, '\n')
	_, err = out.Write(data)
	return err
}

func init() {
	destination.RegisteredWriters[Type] = func() destination.Writer {
		return new(Stdout)
	}
}
