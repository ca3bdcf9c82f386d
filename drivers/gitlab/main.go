package main

import (
	"github.com/datazip-inc/resttap"
	driver "github.com/datazip-inc/resttap/drivers/gitlab/internal"
)

func main() {
	driver := &driver.GitLab{}
	resttap.RegisterDriver(driver)
}
