package driver

import (
	"fmt"
	"time"

	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/utils"
)

const (
	DefaultAPIURL   = "https://gitlab.com/api/v4"
	DefaultPageSize = 100
)

// Config represents the configuration for reading from the GitLab API
type Config struct {
	APIURL     string   `json:"api_url,omitempty" validate:"omitempty,url"`
	AuthToken  string   `json:"auth_token" validate:"required"`
	UserAgent  string   `json:"user_agent,omitempty"`
	ProjectIDs []string `json:"project_ids,omitempty"`
	GroupIDs   []string `json:"group_ids,omitempty"`
	StartDate  string   `json:"start_date,omitempty"`
	PageSize   int      `json:"page_size,omitempty" validate:"gte=0,lte=100"`
	// seconds per request attempt
	RequestTimeout int `json:"request_timeout,omitempty" validate:"gte=0"`
	MaxAttempts    int `json:"max_attempts,omitempty" validate:"gte=0"`
	MaxThreads     int `json:"max_threads,omitempty" validate:"gte=0"`
	RetryCount     int `json:"backoff_retry_count,omitempty" validate:"gte=0"`
}

// Validate checks the configuration and applies defaults
func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	if len(c.ProjectIDs) == 0 && len(c.GroupIDs) == 0 {
		return fmt.Errorf("at least one of project_ids or group_ids is required")
	}
	if c.StartDate != "" {
		if _, err := time.Parse(time.RFC3339, c.StartDate); err != nil {
			return fmt.Errorf("start_date must be RFC3339: %s", err)
		}
	}

	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	return nil
}

func (c *Config) retryConfig() rest.RetryConfig {
	retry := rest.DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	if c.RequestTimeout > 0 {
		retry.RequestTimeout = time.Duration(c.RequestTimeout) * time.Second
	}
	return retry
}
