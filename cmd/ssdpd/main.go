// Ssdpd is an SSDP/UPnP discovery responder.
//
// It advertises a UPnP root device (and any extra service types) on the local
// network, answers M-SEARCH discovery requests from hosts inside the
// configured netmask and withdraws everything with byebye notifications on
// shutdown. A companion mDNS record can be published for zeroconf clients.
//
// Usage:
//
//	ssdpd [command] [flags]
//
// See 'ssdpd --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/ssdpd/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var configPath string

var rootCmd = &cobra.Command{
	Use:   "ssdpd",
	Short: "SSDP/UPnP discovery responder",
	Long: `A standalone SSDP responder that makes this host discoverable as a UPnP
device.

ssdpd announces its records to 239.255.255.250:1900, answers discovery
requests from hosts inside the configured netmask and sends byebye
notifications when it stops. The search and browse commands query the
network for other responders.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/ssdpd/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ssdpd %s (commit: %s)\n", version.Version, version.Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "server token: %s\n", version.ProductToken())
	},
}
