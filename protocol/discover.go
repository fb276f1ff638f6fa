package protocol

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datamorph-io/forcetap/utils"
	"github.com/datamorph-io/forcetap/utils/logger"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "discover command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath == "not-set" {
			return fmt.Errorf("--config not passed")
		}

		return utils.UnmarshalFile(configPath, connector.GetConfigRef(), true)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := connector.Setup(cmd.Context()); err != nil {
			return err
		}
		defer func() {
			if err := connector.Close(); err != nil {
				logger.Errorf("failed to close connector: %s", err)
			}
		}()

		streams, err := connector.Discover(cmd.Context())
		if err != nil {
			return err
		}

		if len(streams) == 0 {
			return errors.New("no streams found in connector")
		}

		logger.LogCatalog(streams)
		return nil
	},
}
