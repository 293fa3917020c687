package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/ssdpd/internal/config"
	"github.com/muurk/ssdpd/internal/description"
	"github.com/muurk/ssdpd/internal/discovery"
	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/server"
	"github.com/muurk/ssdpd/internal/ui"
)

// loadConfig reads the config file, fills in derived values and writes them
// back on first run so the device UUID stays stable.
func loadConfig() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = configPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, path, err
	}

	changed, err := cfg.ApplyDefaults()
	if err != nil {
		return nil, path, err
	}
	if changed {
		if err := cfg.Save(path); err != nil {
			logging.Warn("Could not persist generated settings", zap.String("path", path), zap.Error(err))
		}
	}
	return cfg, path, nil
}

// Serve command and flags
var (
	logLevel     string
	netmask      string
	iface        string
	ssdpPort     int
	accessibleIP string
	extraTypes   []string
	noMDNS       bool
	noStagger    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SSDP responder",
	Long: `Run the SSDP responder until interrupted.

On first start a device UUID is generated, the accessible IP is detected and
the netmask defaults to that single address. These values are written back
to the config file. Flags override the file for this run only.`,
	Example: `  # Run with the saved configuration
  ssdpd serve

  # Answer the whole LAN and log every datagram
  ssdpd serve --netmask 192.168.1.0/24 --log-level debug

  # Advertise an extra device type without mDNS
  ssdpd serve --type urn:schemas-upnp-org:device:MediaServer:1 --no-mdns`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&netmask, "netmask", "", "Only answer hosts in this CIDR")
	serveCmd.Flags().StringVar(&iface, "interface", "", "Multicast interface name or address")
	serveCmd.Flags().IntVar(&ssdpPort, "port", 0, "SSDP port (default 1900)")
	serveCmd.Flags().StringVar(&accessibleIP, "accessible-ip", "", "Address advertised in LOCATION")
	serveCmd.Flags().StringSliceVar(&extraTypes, "type", nil, "Additional service type to advertise (repeatable)")
	serveCmd.Flags().BoolVar(&noMDNS, "no-mdns", false, "Do not publish the mDNS record")
	serveCmd.Flags().BoolVar(&noStagger, "no-stagger", false, "Answer discovery requests immediately instead of within MX")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if netmask != "" {
		cfg.SSDP.UDPNetmask = netmask
	}
	if iface != "" {
		cfg.SSDP.Interface = iface
	}
	if ssdpPort != 0 {
		cfg.SSDP.Port = ssdpPort
	}
	if accessibleIP != "" {
		cfg.Web.AccessibleIP = accessibleIP
	}
	if len(extraTypes) > 0 {
		cfg.SSDP.ExtraTypes = append(cfg.SSDP.ExtraTypes, extraTypes...)
	}
	if noStagger {
		off := false
		cfg.SSDP.StaggerReplies = &off
	}

	srv, err := server.New(&server.Config{
		App:      cfg,
		LogLevel: logLevel,
		NoMDNS:   noMDNS,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logging.Info("Using config file", zap.String("path", path))
	return srv.Start()
}

// Search command and flags
var (
	searchTarget  string
	searchMX      int
	searchTimeout time.Duration
	searchGroup   string
	searchIface   string
	searchMDNS    bool
	searchFormat  string
	describe      bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the network for SSDP responders",
	Long: `Send an M-SEARCH and list every device that answers.

Output is styled when stdout is a terminal and tab-separated otherwise.
With --mdns the companion mDNS advertisements are browsed as well.`,
	Example: `  # Everything on the LAN
  ssdpd search

  # Root devices only, waiting longer
  ssdpd search --st upnp:rootdevice --timeout 10s

  # Query one responder directly
  ssdpd search --group 192.168.1.10:1900

  # JSON for scripting
  ssdpd search --format json

  # Fetch each device description for names and models
  ssdpd search --describe`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTarget, "st", "ssdp:all", "Search target")
	searchCmd.Flags().IntVar(&searchMX, "mx", discovery.DefaultMX, "Reply window in seconds")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", discovery.DefaultScanTimeout, "How long to collect answers")
	searchCmd.Flags().StringVar(&searchGroup, "group", "239.255.255.250:1900", "Destination group or host:port")
	searchCmd.Flags().StringVar(&searchIface, "interface", "", "Outgoing multicast interface")
	searchCmd.Flags().BoolVar(&searchMDNS, "mdns", false, "Also browse mDNS advertisements")
	searchCmd.Flags().StringVar(&searchFormat, "format", "auto", "Output format (auto, plain, json)")
	searchCmd.Flags().BoolVar(&describe, "describe", false, "Fetch each LOCATION and show the device name and model")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(searchGroup); err != nil {
		searchGroup = net.JoinHostPort(searchGroup, strconv.Itoa(1900))
	}

	out := cmd.OutOrStdout()
	styled := searchFormat == "auto" && ui.IsTerminal()
	width := ui.GetTerminalWidth()

	if styled {
		fmt.Fprintln(out, ui.NewHeader("SSDP search", "ssdpd search",
			ui.Param{Key: "Target", Value: searchTarget},
			ui.Param{Key: "Group", Value: searchGroup},
			ui.Param{Key: "Timeout", Value: searchTimeout.String()},
		).Render())
	}

	scanner := discovery.NewScanner()
	scanner.SearchTarget = searchTarget
	scanner.MX = searchMX
	scanner.Timeout = searchTimeout
	scanner.Group = searchGroup
	scanner.Interface = searchIface

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	devices, err := scanner.Search(ctx)
	if err != nil {
		if styled {
			fmt.Fprintln(out, ui.NewFailureResult("Search failed", err, ui.SearchTroubleshooting).Render())
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchMDNS {
		mscanner := discovery.NewMDNSScanner()
		mscanner.Timeout = searchTimeout
		found, err := mscanner.Browse(ctx)
		if err != nil {
			logging.Warn("mDNS browse failed", zap.Error(err))
			if styled {
				fmt.Fprintln(out, ui.NewWarningResult("mDNS browse failed").
					AddDetail("Error", err.Error()).
					SetWidth(width).
					Render())
			}
		}
		devices = append(devices, found...)
	}

	if describe {
		describeDevices(ctx, description.NewClient(), devices)
	}

	switch {
	case searchFormat == "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case !styled:
		fmt.Fprint(out, ui.RenderDevices(devices, width, false))
		return nil
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, ui.NewFailureResult("No devices found", nil, ui.SearchTroubleshooting).Render())
		return nil
	}
	fmt.Fprintln(out, ui.RenderDevices(devices, width, true))
	fmt.Fprintln(out, ui.NewSuccessResult(fmt.Sprintf("%d device(s) found", len(devices))).Render())
	return nil
}

// describeDevices fills in names and models from each device's LOCATION.
// Failures are logged and leave the device as found.
func describeDevices(ctx context.Context, client *description.Client, devices []*discovery.Device) {
	for _, d := range devices {
		if d.Location == "" {
			continue
		}
		desc, err := client.Fetch(ctx, d.Location)
		if err != nil {
			logging.Warn("Could not fetch device description",
				zap.String("usn", d.USN),
				zap.String("location", d.Location),
				zap.Error(err),
			)
			continue
		}
		d.FriendlyName = desc.FriendlyName
		d.Model = strings.TrimSpace(desc.ModelName + " " + desc.ModelNumber)
	}
}

// Config commands
var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new configuration file",
	Long: `Write a configuration file with a freshly generated device UUID and the
detected accessible IP. An existing file is kept unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		cfg, err := config.CreateDefaultConfig(path, forceInit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n  uuid:     %s\n  location: %s\n  netmask:  %s\n",
			path, cfg.Main.UUID, cfg.DescriptorURL(), cfg.SSDP.UDPNetmask)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
