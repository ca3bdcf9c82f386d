package protocol

import (
	"fmt"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/telemetry"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/spf13/cobra"
)

// syncCmd extracts the selected streams into the destination
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "resttap sync command",
	Long:  `Sync command extracts the selected streams and writes their records to the destination, persisting cursors per stream partition`,
	Example: `
// Base command, records are written to stdout as SCHEMA/RECORD/STATE messages:
resttap sync --config path/to/config --catalog path/to/catalog

// With a destination and a state file:
resttap sync --config path/to/config --destination path/to/destination/config --catalog path/to/catalog --state /path/to/state
`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if err := loadConnectorConfig(); err != nil {
			return err
		}
		if err := loadDestinationConfig(); err != nil {
			return err
		}

		catalog = nil
		if streamsPath != "" {
			catalog = &types.Catalog{}
			if err := utils.UnmarshalFile(streamsPath, catalog); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) (syncError error) {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		ctx, event := telemetry.StartEvent(ctx, "sync", connector.Type())
		defer func() {
			event.End(syncError)
		}()

		if err := connector.Setup(ctx); err != nil {
			return err
		}

		streams, err := connector.Discover(ctx)
		if err != nil {
			return err
		}
		if catalog == nil {
			logger.Info("no catalog passed, syncing every discovered stream")
			catalog = types.GetWrappedCatalog(streams)
		}

		categories, err := types.IdentifySelectedStreams(catalog, streams)
		if err != nil {
			return err
		}
		selected := append(append([]types.StreamInterface{}, categories.IncrementalStreams...), categories.StandardStreams...)
		event.SetInt("stream_count", len(selected))

		store, err := newStateStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to open state: %s", err)
		}
		defer store.Close()
		connector.SetupState(store)

		pool, err := destination.NewWriter(ctx, destinationConfig)
		if err != nil {
			return err
		}

		_, err = connector.Read(ctx, pool, selected...)
		event.SetInt("records", int(pool.SyncedRecords()))
		logger.Infof("Total records synced: %d", pool.SyncedRecords())
		if err != nil {
			return fmt.Errorf("error occurred while reading records: %s", err)
		}
		return nil
	},
}
