package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, the config file, TASKLIST_* environment
variables and flags are applied. The store auth token and password are masked; the
admin token is never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		masked := *cfg
		masked.Store.AuthToken = maskSecret(masked.Store.AuthToken)
		masked.Store.Password = maskSecret(masked.Store.Password)

		data, err := yaml.Marshal(masked)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}

		out := cmd.OutOrStdout()
		if used := viper.ConfigFileUsed(); used != "" {
			if _, err := fmt.Fprintf(out, "# source: %s\n", used); err != nil {
				return err
			}
		}
		_, err = out.Write(data)
		return err
	},
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
