package protocol

import (
	"fmt"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/spf13/cobra"
)

// specCmd prints the JSON schema of the connector or destination config
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(_ *cobra.Command, _ []string) error {
		var spec any
		if destinationType == notSet {
			spec = connector.Spec()
		} else {
			newFunc, found := destination.RegisteredWriters[destination.Type(destinationType)]
			if !found {
				return fmt.Errorf("invalid destination type has been passed [%s]", destinationType)
			}
			spec = newFunc().Spec()
		}

		genericSchema := map[string]any{}
		if err := utils.Unmarshal(spec, &genericSchema); err != nil {
			return fmt.Errorf("failed to convert spec to json: %s", err)
		}

		logger.LogResponse(types.Message{
			Type: types.SpecMessage,
			Spec: genericSchema,
		})
		return nil
	},
}
