/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

import (
	"fmt"

	"github.com/datazip-inc/resttap/destination"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		// If connector is not set, we are checking the destination
		if destinationConfigPath == notSet && configPath == notSet {
			return fmt.Errorf("no connector config or destination config provided")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		err := func() error {
			if configPath != notSet {
				if err := loadConnectorConfig(); err != nil {
					return err
				}
				if err := connector.Setup(ctx); err != nil {
					return err
				}
				if err := connector.Check(ctx); err != nil {
					return err
				}
			}

			if destinationConfigPath != notSet {
				if err := loadDestinationConfig(); err != nil {
					return err
				}
				_, err := destination.NewWriter(ctx, destinationConfig)
				return err
			}

			return nil
		}()

		logConnectionStatus(err)
	},
}
