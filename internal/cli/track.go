package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/stagetrack/internal/config"
	"github.com/example/stagetrack/internal/ctxutil"
	"github.com/example/stagetrack/internal/wire"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var configPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track how long each open opportunity has stayed in its stage",
		Long: `Fetch every open opportunity and update its stage tracking custom fields.

The three custom fields are located by name:
  "last known stage", "last time stage changed", "days in current stage"

The run aborts on the first fatal error (missing fields, unknown stage,
failed API call). Re-running is safe: unchanged opportunities converge.

Examples:
  stagetrack run
  stagetrack run --dry-run
  stagetrack run --config /etc/stagetrack.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := wire.NewServices(configPath)
			if err != nil {
				return err
			}
			defer services.Close()

			ctx := ctxutil.WithNewRunID(cmd.Context())
			return services.TrackAdapterWithOutput(cmd.OutOrStdout()).Run(ctx, dryRun)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and report decisions without saving")

	return cmd
}

// FieldsCmd returns the fields command
func FieldsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Resolve and print the tracking custom field ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := wire.NewServices(configPath)
			if err != nil {
				return err
			}
			defer services.Close()

			return services.TrackAdapterWithOutput(cmd.OutOrStdout()).Fields(cmd.Context())
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// StagesCmd returns the stages command
func StagesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Print the pipeline stage catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := wire.NewServices(configPath)
			if err != nil {
				return err
			}
			defer services.Close()

			return services.TrackAdapterWithOutput(cmd.OutOrStdout()).Stages(cmd.Context())
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func addConfigFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "config", config.DefaultPath, "Path to the YAML config file (optional)")
}
