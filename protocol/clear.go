package protocol

import (
	"fmt"

	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/spf13/cobra"
)

// clearCmd drops replication cursors so the selected streams restart from
// their start cursor on the next sync
var clearCmd = &cobra.Command{
	Use:   "clear-state",
	Short: "resttap clear command to reset state of selected streams",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if streamsPath == "" {
			return fmt.Errorf("--streams not passed")
		}

		catalog = &types.Catalog{}
		return utils.UnmarshalFile(streamsPath, catalog)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		selected := make(map[string]bool, len(catalog.SelectedStreams))
		for _, id := range catalog.SelectedStreams {
			selected[id] = true
		}
		var dropStreams []string
		for _, stream := range catalog.Streams {
			if catalog.SelectedStreams == nil || selected[stream.ID()] {
				dropStreams = append(dropStreams, stream.ID())
			}
		}
		if len(dropStreams) == 0 {
			logger.Infof("No streams selected for clearing")
			return nil
		}

		store, err := newStateStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to open state: %s", err)
		}
		defer store.Close()

		if err := store.ResetStreams(ctx, dropStreams...); err != nil {
			return fmt.Errorf("error clearing state: %s", err)
		}
		logger.Infof("State for streams %v cleared successfully.", dropStreams)

		snapshot, err := store.Snapshot(ctx)
		if err != nil {
			return err
		}
		logger.LogResponse(types.Message{Type: types.StateMessage, State: snapshot})
		return nil
	},
}
