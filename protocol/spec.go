package protocol

import (
	"github.com/spf13/cobra"

	"github.com/datamorph-io/forcetap/utils/logger"
)

// specCmd represents the spec command
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(_ *cobra.Command, _ []string) error {
		logger.LogSpec(connector.Spec())
		return nil
	},
}
