package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalFile(t *testing.T) {
	t.Setenv("RESTTAP_TEST_TOKEN", "s3cret")
	dir := t.TempDir()

	type config struct {
		APIURL string   `json:"api_url"`
		Token  string   `json:"token"`
		IDs    []string `json:"ids"`
	}

	t.Run("json with env reference", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"api_url":"https://gitlab.com/api/v4","token":"${RESTTAP_TEST_TOKEN}"}`), 0o600))

		var out config
		require.NoError(t, UnmarshalFile(path, &out))
		assert.Equal(t, "s3cret", out.Token)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api_url: https://gitlab.com/api/v4\nids:\n  - group/app\n  - \"42\"\n"), 0o600))

		var out config
		require.NoError(t, UnmarshalFile(path, &out))
		assert.Equal(t, "https://gitlab.com/api/v4", out.APIURL)
		assert.Equal(t, []string{"group/app", "42"}, out.IDs)
	})

	t.Run("missing file", func(t *testing.T) {
		var out config
		assert.Error(t, UnmarshalFile(filepath.Join(dir, "absent.json"), &out))
	})
}

func TestConcurrentCollect(t *testing.T) {
	var (
		running atomic.Int32
		peak    atomic.Int32
		done    atomic.Int32
	)
	items := []int{1, 2, 3, 4, 5, 6}

	err := ConcurrentCollect(context.Background(), items, 2, func(_ context.Context, _ int, item int) error {
		now := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		done.Add(1)

		switch item {
		case 2:
			return errors.New("item two failed")
		case 4:
			panic("item four panicked")
		}
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "item two failed")
	assert.Contains(t, err.Error(), "item four panicked")
	assert.Equal(t, int32(6), done.Load(), "failures do not stop siblings")
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestErrExecSequential(t *testing.T) {
	var calls []string
	err := ErrExecSequential(
		func() error { calls = append(calls, "flush"); return errors.New("flush failed") },
		ErrExecFormat("failed to close: %s", func() error { calls = append(calls, "close"); return errors.New("closed twice") }),
	)

	require.Error(t, err)
	assert.Equal(t, []string{"flush", "close"}, calls)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Contains(t, err.Error(), "failed to close: closed twice")
}
