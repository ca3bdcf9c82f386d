package local

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/goccy/go-json"
)

const Type destination.Type = "local"

// Local destination writes JSON lines files
// local_path/namespace/stream/<ulid>.jsonl
type Local struct {
	closed   bool
	fileName string
	config   *Config
	file     *os.File
	buffer   *bufio.Writer
	stream   types.StreamInterface
	batches  int
	records  atomic.Int64
}

func (l *Local) GetConfigRef() destination.Config {
	l.config = &Config{}
	return l.config
}

func (l *Local) Spec() any {
	return Config{}
}

func (l *Local) Type() string {
	return string(Type)
}

func (l *Local) Setup(stream types.StreamInterface, _ *destination.Options) error {
	l.fileName = fmt.Sprintf("%s.%s", utils.ULID(), constants.LocalFileExt)
	path := filepath.Join(l.config.BaseFilePath, stream.Namespace(), stream.Name(), l.fileName)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	l.file = file
	l.buffer = bufio.NewWriter(file)
	l.stream = stream
	return nil
}

func (l *Local) Check(_ context.Context) error {
	if err := os.MkdirAll(l.config.BaseFilePath, os.ModePerm); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(l.config.BaseFilePath, "temporary-*.txt")
	if err != nil {
		return err
	}
	logger.Debugf("Temporary file created: %s", tempFile.Name())

	if _, err := tempFile.Write([]byte("resttap write check")); err != nil {
		_ = tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	return os.Remove(tempFile.Name())
}

func (l *Local) Write(ctx context.Context, records []types.RecordEnvelope) error {
	if l.closed {
		return fmt.Errorf("writer for stream %s already closed", l.stream.ID())
	}
	for _, envelope := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(envelope.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %s", err)
		}
		if _, err := l.buffer.Write(append(data, '\n')); err != nil {
			return err
		}
		l.records.Add(1)
	}

	l.batches++
	if l.config.FlushEvery > 0 && l.batches%l.config.FlushEvery == 0 {
		if err := l.buffer.Flush(); err != nil {
			return err
		}
		return l.file.Sync()
	}
	return nil
}

func (l *Local) Close(_ context.Context) error {
	if l.closed || l.file == nil {
		return nil
	}
	l.closed = true

	err := utils.ErrExecSequential(
		utils.ErrExecFormat("failed to flush buffer: %s", l.buffer.Flush),
		utils.ErrExecFormat("failed to sync file: %s", l.file.Sync),
		utils.ErrExecFormat("failed to close file: %s", l.file.Close),
	)
	if err != nil {
		return err
	}

	// partitions without records leave no file behind
	if l.records.Load() == 0 {
		return os.Remove(l.file.Name())
	}
	logger.Infof("Finished writing file [%s] with %d records", l.fileName, l.records.Load())
	return nil
}

func init() {
	destination.RegisteredWriters[Type] = func() destination.Writer {
		return new(Local)
	}
}
