package resttap

import (
	"os"

	"github.com/datazip-inc/resttap/drivers/abstract"
	"github.com/datazip-inc/resttap/protocol"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/datazip-inc/resttap/utils/safego"
)

func RegisterDriver(driver abstract.DriverInterface) {
	defer safego.Recovery(true)

	// Execute the root command
	err := protocol.CreateRootCommand(driver).Execute()
	if err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}
