package driver

import (
	"fmt"
	"time"

	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
)

type PaginationType string

const (
	PaginationNone     PaginationType = "none"
	PaginationBodyPath PaginationType = "body_path"
	PaginationHeader   PaginationType = "header"
	PaginationPage     PaginationType = "page"
	PaginationOffset   PaginationType = "offset"
)

// Config represents the configuration of a config driven REST tap
type Config struct {
	APIURL    string            `json:"api_url" validate:"required,url"`
	Auth      auth.Config       `json:"auth"`
	Headers   map[string]string `json:"headers,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Retry     RetryConfig       `json:"retry"`
	// seconds per request attempt
	RequestTimeout  int            `json:"request_timeout,omitempty" validate:"gte=0"`
	MaxConnections  int            `json:"max_connections,omitempty" validate:"gte=0"`
	MaxRetries      int            `json:"max_retries,omitempty" validate:"gte=0"`
	StartDate       string         `json:"start_date,omitempty"`
	ValidateRecords bool           `json:"validate_records,omitempty"`
	Streams         []StreamConfig `json:"streams" validate:"required,min=1,dive"`
}

type RetryConfig struct {
	MaxAttempts int `json:"max_attempts,omitempty" validate:"gte=0"`
	// seconds
	InitialInterval float64 `json:"initial_interval,omitempty" validate:"gte=0"`
	MaxInterval     float64 `json:"max_interval,omitempty" validate:"gte=0"`
	Multiplier      float64 `json:"multiplier,omitempty" validate:"gte=0"`
	StatusCodes     []int   `json:"retry_status_codes,omitempty"`
}

type StreamConfig struct {
	Name             string            `json:"name" validate:"required"`
	Namespace        string            `json:"namespace,omitempty"`
	Path             string            `json:"path" validate:"required"`
	Method           string            `json:"method,omitempty" validate:"http_method"`
	RecordsPath      string            `json:"records_path,omitempty"`
	PrimaryKeys      []string          `json:"primary_keys,omitempty"`
	ReplicationKey   string            `json:"replication_key,omitempty"`
	ReplicationParam string            `json:"replication_param,omitempty"`
	SortParam        string            `json:"sort_param,omitempty"`
	OrderByParam     string            `json:"order_by_param,omitempty"`
	Params           map[string]string `json:"params,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Pagination       Pagination        `json:"pagination"`
	Partitions       []types.Context   `json:"partitions,omitempty"`
	Parent           string            `json:"parent,omitempty"`
	// child context key -> parent record field, e.g. {"epic_iid": "iid"}
	ChildContext  map[string]string  `json:"child_context,omitempty"`
	Schema        map[string]any     `json:"schema,omitempty"`
	OnRecordError rest.OnRecordError `json:"on_record_error,omitempty" validate:"omitempty,oneof=skip fail"`
}

type Pagination struct {
	Type PaginationType `json:"type,omitempty" validate:"omitempty,oneof=none body_path header page offset"`
	// body_path: location of the next token in the response body
	Path string `json:"path,omitempty"`
	// header: response header carrying the next token
	Header string `json:"header,omitempty"`
	// query param receiving the token
	Param          string `json:"param,omitempty"`
	LimitParam     string `json:"limit_param,omitempty"`
	Limit          int    `json:"limit,omitempty" validate:"gte=0"`
	TotalPagesPath string `json:"total_pages_path,omitempty"`
	MaxPages       int    `json:"max_pages,omitempty" validate:"gte=0"`
}

func (s *StreamConfig) ID() string {
	return types.StreamID(s.Namespace, s.Name)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}

	if c.StartDate != "" {
		if _, err := time.Parse(time.RFC3339, c.StartDate); err != nil {
			return fmt.Errorf("start_date must be RFC3339: %s", err)
		}
	}

	ids := make(map[string]*StreamConfig, len(c.Streams))
	for idx := range c.Streams {
		stream := &c.Streams[idx]
		if _, found := ids[stream.ID()]; found {
			return fmt.Errorf("duplicate stream %s", stream.ID())
		}
		ids[stream.ID()] = stream
	}

	for idx := range c.Streams {
		stream := &c.Streams[idx]
		if err := stream.Pagination.validate(); err != nil {
			return fmt.Errorf("stream %s: %s", stream.ID(), err)
		}
		if stream.Parent == "" {
			if len(stream.ChildContext) > 0 {
				return fmt.Errorf("stream %s: child_context requires a parent", stream.ID())
			}
			continue
		}
		if c.stream(stream.Parent) == nil {
			return fmt.Errorf("stream %s: unknown parent %s", stream.ID(), stream.Parent)
		}
		if len(stream.ChildContext) == 0 {
			return fmt.Errorf("stream %s: child_context is required for child streams", stream.ID())
		}
		if len(stream.Partitions) > 0 {
			return fmt.Errorf("stream %s: child streams derive partitions from their parent", stream.ID())
		}
	}

	return nil
}

func (p *Pagination) validate() error {
	switch p.Type {
	case PaginationBodyPath:
		if p.Path == "" {
			return fmt.Errorf("body_path pagination requires path")
		}
	case PaginationOffset:
		if p.Limit <= 0 {
			return fmt.Errorf("offset pagination requires a positive limit")
		}
	}
	return nil
}

// stream finds a stream by id, falling back to its name
func (c *Config) stream(ref string) *StreamConfig {
	for idx := range c.Streams {
		if c.Streams[idx].ID() == ref {
			return &c.Streams[idx]
		}
	}
	for idx := range c.Streams {
		if c.Streams[idx].Name == ref {
			return &c.Streams[idx]
		}
	}
	return nil
}

func (c *Config) retryConfig() rest.RetryConfig {
	return rest.RetryConfig{
		MaxAttempts:      c.Retry.MaxAttempts,
		InitialInterval:  seconds(c.Retry.InitialInterval),
		MaxInterval:      seconds(c.Retry.MaxInterval),
		Multiplier:       c.Retry.Multiplier,
		RequestTimeout:   seconds(float64(c.RequestTimeout)),
		RetryStatusCodes: c.Retry.StatusCodes,
	}
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}
