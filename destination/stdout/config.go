package stdout

import (
	"github.com/datazip-inc/resttap/utils"
)

type Config struct {
	// SkipSchema suppresses SCHEMA messages ahead of each stream's records
	SkipSchema bool `json:"skip_schema,omitempty"`
	// SkipState suppresses STATE checkpoints
	SkipState bool `json:"skip_state,omitempty"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}
