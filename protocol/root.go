package protocol

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/drivers/abstract"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils"
	"github.com/datamorph-io/forcetap/utils/logger"
)

var (
	configPath    string
	catalogPath   string
	statePath     string
	encryptionKey string
	noSave        bool

	catalog *types.Catalog
	state   *types.State

	commands  = []*cobra.Command{}
	connector *abstract.AbstractDriver
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "forcetap",
	Short: "root command",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		viper.SetDefault(constants.ConfigFolder, os.TempDir())
		viper.SetDefault(constants.StatePath, filepath.Join(os.TempDir(), "state.json"))
		viper.SetDefault(constants.StreamsPath, filepath.Join(os.TempDir(), "streams.json"))

		if !noSave && configPath != "not-set" {
			configFolder := filepath.Dir(configPath)
			viper.Set(constants.ConfigFolder, configFolder)
			viper.Set(constants.StatePath, utils.Ternary(statePath == "", filepath.Join(configFolder, "state.json"), statePath).(string))
			viper.Set(constants.StreamsPath, utils.Ternary(catalogPath == "", filepath.Join(configFolder, "streams.json"), catalogPath).(string))
		}

		if encryptionKey != "" {
			viper.Set(constants.EncryptionKey, encryptionKey)
		}

		// logger uses CONFIG_FOLDER
		logger.Init()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'forcetap --help' to display usage guide", args[0])
		}

		return nil
	},
}

func CreateRootCommand(driver any) *cobra.Command {
	RootCmd.AddCommand(commands...)
	connector = abstract.NewAbstractDriver(driver.(abstract.DriverInterface))

	return RootCmd
}

func init() {
	commands = append(commands, specCmd, checkCmd, discoverCmd, syncCmd)

	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "not-set", "(Required) Config for the connector")
	RootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "", "", "Catalog file with the streams to sync")
	RootCmd.PersistentFlags().StringVarP(&statePath, "state", "", "", "State file to resume from")
	RootCmd.PersistentFlags().StringVarP(&encryptionKey, "encryption-key", "", "", "Key to decrypt config files; KMS ARN or local passphrase")
	RootCmd.PersistentFlags().BoolVarP(&noSave, "no-save", "", false, "Skip persisting logs, streams and state next to the config")

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
