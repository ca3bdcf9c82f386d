package driver

import (
	"testing"
	"time"

	"github.com/datazip-inc/resttap/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		APIURL: "https://api.example.com/v1",
		Streams: []StreamConfig{
			{Name: "items", Namespace: "api", Path: "items", RecordsPath: "$.items[*]"},
			{
				Name:         "notes",
				Namespace:    "api",
				Path:         "items/{item_id}/notes",
				Parent:       "items",
				ChildContext: map[string]string{"item_id": "id"},
			},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing api url",
			mutate:  func(c *Config) { c.APIURL = "" },
			wantErr: "api_url",
		},
		{
			name:    "no streams",
			mutate:  func(c *Config) { c.Streams = nil },
			wantErr: "streams",
		},
		{
			name:    "bad start date",
			mutate:  func(c *Config) { c.StartDate = "yesterday" },
			wantErr: "start_date",
		},
		{
			name: "duplicate stream",
			mutate: func(c *Config) {
				c.Streams = append(c.Streams, StreamConfig{Name: "items", Namespace: "api", Path: "other"})
			},
			wantErr: "duplicate stream api.items",
		},
		{
			name:    "unknown parent",
			mutate:  func(c *Config) { c.Streams[1].Parent = "projects" },
			wantErr: "unknown parent projects",
		},
		{
			name:    "child without child_context",
			mutate:  func(c *Config) { c.Streams[1].ChildContext = nil },
			wantErr: "child_context is required",
		},
		{
			name:    "child_context without parent",
			mutate:  func(c *Config) { c.Streams[0].ChildContext = map[string]string{"a": "b"} },
			wantErr: "requires a parent",
		},
		{
			name: "child with static partitions",
			mutate: func(c *Config) {
				c.Streams[1].Partitions = []types.Context{{"item_id": 1}}
			},
			wantErr: "derive partitions",
		},
		{
			name:    "body path pagination without path",
			mutate:  func(c *Config) { c.Streams[0].Pagination = Pagination{Type: PaginationBodyPath} },
			wantErr: "requires path",
		},
		{
			name:    "offset pagination without limit",
			mutate:  func(c *Config) { c.Streams[0].Pagination = Pagination{Type: PaginationOffset} },
			wantErr: "positive limit",
		},
		{
			name:    "unknown pagination type",
			mutate:  func(c *Config) { c.Streams[0].Pagination = Pagination{Type: "cursor"} },
			wantErr: "type",
		},
		{
			name:    "unknown record error policy",
			mutate:  func(c *Config) { c.Streams[0].OnRecordError = "ignore" },
			wantErr: "on_record_error",
		},
		{
			name:    "unknown auth type",
			mutate:  func(c *Config) { c.Auth.Type = "digest" },
			wantErr: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_StreamLookup(t *testing.T) {
	config := validConfig()

	assert.Equal(t, "items", config.stream("api.items").Name)
	assert.Equal(t, "notes", config.stream("notes").Name)
	assert.Nil(t, config.stream("api.projects"))
}

func TestConfig_RetryConfig(t *testing.T) {
	config := validConfig()
	config.RequestTimeout = 10
	config.Retry = RetryConfig{MaxAttempts: 5, InitialInterval: 0.5, MaxInterval: 4, Multiplier: 3, StatusCodes: []int{503}}

	retry := config.retryConfig()
	assert.Equal(t, 5, retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, retry.InitialInterval)
	assert.Equal(t, 4*time.Second, retry.MaxInterval)
	assert.Equal(t, 3.0, retry.Multiplier)
	assert.Equal(t, 10*time.Second, retry.RequestTimeout)
	assert.Equal(t, []int{503}, retry.RetryStatusCodes)
}
