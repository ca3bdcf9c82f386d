package protocol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/drivers/abstract"
	"github.com/datazip-inc/resttap/state"
	"github.com/datazip-inc/resttap/telemetry"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// registering destinations
	_ "github.com/datazip-inc/resttap/destination/local"
	_ "github.com/datazip-inc/resttap/destination/s3"
	_ "github.com/datazip-inc/resttap/destination/stdout"
)

const notSet = "not-set"

var (
	configPath            string
	destinationConfigPath string
	destinationType       string
	statePath             string
	stateDSN              string
	stateTable            string
	streamsPath           string
	envFile               string
	encryptionKey         string
	logLevel              string
	batchSize             int
	maxConnections        int
	noSave                bool
	traceEnabled          bool
	timeout               int64 // timeout in seconds
	catalog               *types.Catalog
	destinationConfig     *destination.WriterConfig

	commands  = []*cobra.Command{}
	connector *abstract.AbstractDriver
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "resttap",
	Short: "resttap extracts records from REST APIs",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		configFolder := utils.Ternary(configPath == notSet, filepath.Dir(destinationConfigPath), filepath.Dir(configPath)).(string)

		// secrets referenced as ${VAR} in config files
		dotenv := utils.Ternary(envFile == "", filepath.Join(configFolder, ".env"), envFile).(string)
		if err := godotenv.Load(dotenv); err != nil && (envFile != "" || !errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("failed to load env file[%s]: %s", dotenv, err)
		}

		viper.SetEnvPrefix(constants.EnvPrefix)
		viper.AutomaticEnv()

		viper.SetDefault(constants.ConfigFolder, os.TempDir())
		viper.SetDefault(constants.StreamsPath, filepath.Join(os.TempDir(), "streams.json"))
		viper.Set(constants.NoSave, noSave)
		if encryptionKey != "" {
			viper.Set(constants.EncryptionKey, encryptionKey)
		}
		if !noSave {
			viper.Set(constants.ConfigFolder, configFolder)
			viper.Set(constants.StreamsPath, utils.Ternary(streamsPath == "", filepath.Join(configFolder, "streams.json"), streamsPath).(string))
			viper.Set(constants.StatePath, utils.Ternary(statePath == "", filepath.Join(configFolder, "state.json"), statePath).(string))
		}

		// logger uses CONFIG_FOLDER
		logger.Init()
		telemetry.Init()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'resttap --help' to display usage guide", args[0])
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		telemetry.Shutdown(context.WithoutCancel(cmd.Context()))
	},
}

func CreateRootCommand(driver abstract.DriverInterface) *cobra.Command {
	if !RootCmd.HasSubCommands() {
		RootCmd.AddCommand(commands...)
	}
	connector = abstract.NewAbstractDriver(RootCmd.Context(), driver)

	return RootCmd
}

// loadConnectorConfig reads and validates the source config file
func loadConnectorConfig() error {
	if configPath == notSet {
		return fmt.Errorf("--config not passed")
	}
	config := connector.GetConfigRef()
	if err := utils.UnmarshalFile(configPath, config); err != nil {
		return err
	}
	return config.Validate()
}

// loadDestinationConfig reads the destination config, defaulting to stdout
func loadDestinationConfig() error {
	destinationConfig = &destination.WriterConfig{Type: "stdout"}
	if destinationConfigPath != notSet {
		if err := utils.UnmarshalFile(destinationConfigPath, destinationConfig); err != nil {
			return err
		}
	}
	if batchSize > 0 {
		destinationConfig.BatchSize = batchSize
	}
	return utils.Validate(destinationConfig)
}

// newStateStore selects postgres when a DSN is configured and the state
// file otherwise. With --no-save the state file is read but never written.
func newStateStore(ctx context.Context) (state.Store, error) {
	if dsn := viper.GetString(constants.StateDSN); dsn != "" {
		return state.NewPostgresStore(ctx, dsn, viper.GetString(constants.StateTable))
	}

	if !noSave {
		return state.NewFileStore(viper.GetString(constants.StatePath))
	}
	if statePath == "" {
		return state.NewFileStore("")
	}
	loaded := types.NewState()
	if _, err := os.Stat(statePath); err == nil {
		if err := utils.UnmarshalFile(statePath, loaded); err != nil {
			return nil, fmt.Errorf("failed to load state file[%s]: %s", statePath, err)
		}
	}
	return state.NewFileStoreFrom("", loaded), nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	}
	return context.WithCancel(ctx)
}

func logConnectionStatus(err error) {
	message := types.Message{
		Type: types.ConnectionStatusMessage,
		ConnectionStatus: &types.StatusRow{
			Status: types.ConnectionSucceed,
		},
	}
	if err != nil {
		message.ConnectionStatus.Message = err.Error()
		message.ConnectionStatus.Status = types.ConnectionFailed
	}
	logger.LogResponse(message)
}

func init() {
	commands = append(commands, specCmd, checkCmd, discoverCmd, syncCmd, clearCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", notSet, "(Required) Config for connector")
	RootCmd.PersistentFlags().StringVarP(&destinationConfigPath, "destination", "", notSet, "(Optional) Destination config, records go to stdout when not set")
	RootCmd.PersistentFlags().StringVarP(&destinationType, "destination-type", "", notSet, "Destination type for spec")
	RootCmd.PersistentFlags().StringVarP(&streamsPath, "catalog", "", "", "Path to the streams file for the connector")
	RootCmd.PersistentFlags().StringVarP(&streamsPath, "streams", "", "", "Path to the streams file for the connector")
	RootCmd.PersistentFlags().StringVarP(&statePath, "state", "", "", "(Optional) State file for connector")
	RootCmd.PersistentFlags().StringVarP(&stateDSN, "state-dsn", "", "", "(Optional) Postgres DSN to keep state in a table instead of a file")
	RootCmd.PersistentFlags().StringVarP(&stateTable, "state-table", "", state.DefaultTable, "(Optional) Postgres table for state")
	RootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "", "", "(Optional) dotenv file with secrets, defaults to .env next to the config")
	RootCmd.PersistentFlags().StringVarP(&encryptionKey, "encryption-key", "", "", "(Optional) Key to decrypt config files, either a KMS key ARN or a passphrase")
	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "(Optional) Log level")
	RootCmd.PersistentFlags().IntVarP(&batchSize, "destination-buffer-size", "", 0, "(Optional) Batch size for destination")
	RootCmd.PersistentFlags().IntVarP(&maxConnections, "max-connections", "", 0, "(Optional) Override concurrent partitions")
	RootCmd.PersistentFlags().BoolVarP(&noSave, "no-save", "", false, "(Optional) Flag to skip logging artifacts in file")
	RootCmd.PersistentFlags().BoolVarP(&traceEnabled, "trace", "", false, "(Optional) Export trace spans to stderr")
	RootCmd.PersistentFlags().Int64VarP(&timeout, "timeout", "", -1, "(Optional) Timeout for the whole command (in seconds)")

	for key, flag := range map[string]string{
		constants.LogLevel:       "log-level",
		constants.TraceEnabled:   "trace",
		constants.MaxConnections: "max-connections",
		constants.StateDSN:       "state-dsn",
		constants.StateTable:     "state-table",
	} {
		_ = viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(flag))
	}

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
