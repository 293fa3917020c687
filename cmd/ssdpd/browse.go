package main

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ssdpd/internal/description"
	"github.com/muurk/ssdpd/internal/discovery"
	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/tui"
	"github.com/muurk/ssdpd/internal/ui"
)

// Browse command and flags
var (
	browseTarget   string
	browseMX       int
	browseTimeout  time.Duration
	browseInterval time.Duration
	browseGroup    string
	browseIface    string
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse SSDP responders interactively",
	Long: `Open a full-screen browser that searches the network, lists every device
that answers and re-runs the search on an interval.

Press enter on a device to fetch its UPnP description, s to change the
search target and / to filter the list.`,
	Example: `  # Browse everything, rescanning every 30 seconds
  ssdpd browse

  # Root devices only, no automatic rescans
  ssdpd browse --st upnp:rootdevice --interval 0`,
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringVar(&browseTarget, "st", "ssdp:all", "Initial search target")
	browseCmd.Flags().IntVar(&browseMX, "mx", discovery.DefaultMX, "Reply window in seconds")
	browseCmd.Flags().DurationVar(&browseTimeout, "timeout", discovery.DefaultScanTimeout, "How long each search collects answers")
	browseCmd.Flags().DurationVar(&browseInterval, "interval", 30*time.Second, "Rescan interval (0 disables)")
	browseCmd.Flags().StringVar(&browseGroup, "group", "239.255.255.250:1900", "Destination group or host:port")
	browseCmd.Flags().StringVar(&browseIface, "interface", "", "Outgoing multicast interface")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return errors.New("browse needs an interactive terminal; use 'ssdpd search' instead")
	}
	// Log lines would tear the alternate screen.
	logging.SetLogger(nil)

	if _, _, err := net.SplitHostPort(browseGroup); err != nil {
		browseGroup = net.JoinHostPort(browseGroup, strconv.Itoa(1900))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return tui.Run(tui.Options{
		Context:  ctx,
		Scan:     browseScan,
		Describe: description.NewClient().Fetch,
		Target:   browseTarget,
		Timeout:  browseTimeout,
		Interval: browseInterval,
	})
}

func browseScan(ctx context.Context, target string) ([]*discovery.Device, error) {
	scanner := discovery.NewScanner()
	scanner.SearchTarget = target
	scanner.MX = browseMX
	scanner.Timeout = browseTimeout
	scanner.Group = browseGroup
	scanner.Interface = browseIface
	return scanner.Search(ctx)
}
