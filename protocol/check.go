package protocol

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datamorph-io/forcetap/utils"
	"github.com/datamorph-io/forcetap/utils/logger"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath == "not-set" {
			return fmt.Errorf("no connector config provided")
		}

		return utils.UnmarshalFile(configPath, connector.GetConfigRef(), true)
	},
	Run: func(cmd *cobra.Command, _ []string) {
		// a teardown failure fails the check too; both errors accumulate
		err := utils.ErrExecSequential(
			func() error { return connector.Setup(cmd.Context()) },
			utils.ErrExecFormat("failed to close connector: %s", connector.Close),
		)

		logger.LogConnectionStatus(err)
	},
}
