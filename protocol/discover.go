package protocol

import (
	"errors"

	"github.com/datazip-inc/resttap/telemetry"
	"github.com/datazip-inc/resttap/types"
	"github.com/spf13/cobra"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "discover command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConnectorConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) (discoverError error) {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		ctx, event := telemetry.StartEvent(ctx, "discover", connector.Type())
		defer func() {
			event.End(discoverError)
		}()

		if err := connector.Setup(ctx); err != nil {
			return err
		}
		streams, err := connector.Discover(ctx)
		if err != nil {
			return err
		}
		event.SetInt("stream_count", len(streams))

		if len(streams) == 0 {
			return errors.New("no streams found in connector")
		}

		types.LogCatalog(streams)
		return nil
	},
}
