package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewConfigCmd создаёт команду вывода конфигурации стека.
func NewConfigCmd(app *App) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration derived from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := app.Output()
			cfg := app.Config

			if out.JSONMode() {
				out.JSON(cfg)
			} else {
				out.KeyValues([][2]string{
					{"AWS account", cfg.AWSAccountID},
					{"AWS region", cfg.AWSRegion},
					{"Stack", cfg.CFNStackName},
					{"Test namespace", cfg.TestNamespace},
					{"ECR registry", cfg.ECRRegistry},
					{"ECR path", cfg.ECRPath},
					{"GPU queue", cfg.BatchGPUQueue},
					{"Batch queue", cfg.BatchQueue},
					{"Batch image", cfg.BatchImage},
					{"Package suffixes", cfg.PackageSuffixes},
				})
			}

			if missing := cfg.Missing(); len(missing) > 0 {
				if strict {
					return cfg.Validate()
				}
				out.Warn("not set: " + strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail if any variable is missing")

	return cmd
}
