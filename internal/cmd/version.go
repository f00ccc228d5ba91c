package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/server/handlers"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !extended {
			_, err := fmt.Fprintf(out, "%s %s\n", config.AppName, versionInfo.Version)
			return err
		}

		info := handlers.CurrentVersion()
		_, err := fmt.Fprintf(out, "%s %s\nCommit: %s\nBuilt: %s\nGo: %s\nPlatform: %s\n\nGofulmen: %s\nCrucible: %s\n",
			info.App.Name, info.App.Version,
			info.App.Commit,
			info.App.BuildDate,
			info.App.GoVersion,
			info.Runtime.Platform,
			info.Dependencies.Gofulmen,
			info.Dependencies.Crucible)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
