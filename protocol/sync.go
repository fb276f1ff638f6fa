package protocol

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils"
	"github.com/datamorph-io/forcetap/utils/logger"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "sync command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath == "not-set" {
			return fmt.Errorf("--config not passed")
		}
		if catalogPath == "" {
			return fmt.Errorf("--catalog not passed")
		}

		catalog = &types.Catalog{}
		state = types.NewState()

		// the three inputs are independent files
		return utils.ErrExec(
			utils.ErrExecFormat("failed to read config: %s", func() error {
				return utils.UnmarshalFile(configPath, connector.GetConfigRef(), true)
			}),
			utils.ErrExecFormat("failed to read catalog: %s", func() error {
				return utils.UnmarshalFile(catalogPath, catalog, false)
			}),
			utils.ErrExecFormat("failed to read state: %s", func() error {
				if statePath == "" {
					return nil
				}
				if _, err := os.Stat(statePath); err != nil {
					return nil
				}
				return utils.UnmarshalFile(statePath, state, false)
			}),
		)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger.Infof("Starting sync run %s", utils.ULID())

		if err := connector.Setup(cmd.Context()); err != nil {
			return err
		}
		defer func() {
			if err := connector.Close(); err != nil {
				logger.Errorf("failed to close connector: %s", err)
			}
		}()

		connector.SetupState(state)

		selected := []types.StreamInterface{}
		selectedIDs := []string{}
		for _, stream := range catalog.Streams {
			if stream.Stream == nil {
				return fmt.Errorf("catalog carries an entry without a stream")
			}
			if !stream.IsSelected() {
				logger.Debugf("Skipping stream %s; not selected.", stream.ID())
				continue
			}
			selected = append(selected, stream)
			selectedIDs = append(selectedIDs, stream.ID())
		}

		if len(selected) == 0 {
			return fmt.Errorf("no valid streams found in catalog")
		}
		logger.Infof("Valid selected streams are %s", strings.Join(selectedIDs, ", "))

		err := connector.Sync(cmd.Context(), selected)

		// flush the final resumption point even on failure
		logger.LogState(state)
		return err
	},
}
