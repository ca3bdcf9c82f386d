package local

import (
	"github.com/datazip-inc/resttap/utils"
)

type Config struct {
	BaseFilePath string `json:"local_path" validate:"required"`
	// FlushEvery syncs the file to disk after this many batches, 0 on close only
	FlushEvery int `json:"flush_every,omitempty" validate:"gte=0"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}
