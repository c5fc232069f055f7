// Command mcgate runs the protocol 47 game server front end.
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcgate",
		Short: "Minecraft 1.8 (protocol 47) network front end",
		Long: `mcgate accepts Minecraft 1.8 clients, answers server list pings
and logs players in. Runtime settings are read from yaml files in the
config directory and reloaded when they change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
