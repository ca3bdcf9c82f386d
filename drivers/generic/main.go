package main

import (
	"github.com/datazip-inc/resttap"
	driver "github.com/datazip-inc/resttap/drivers/generic/internal"
)

func main() {
	driver := &driver.Generic{}
	resttap.RegisterDriver(driver)
}
