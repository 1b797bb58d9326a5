package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sparse-blobpool/blobsim/sim"
)

// defaultConfigCmd prints the reference configuration as YAML, ready to edit
// and pass back through --config.
var defaultConfigCmd = &cobra.Command{
	Use:   "default-config",
	Short: "Print the default simulation configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := sim.MarshalConfig(sim.DefaultConfig())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
