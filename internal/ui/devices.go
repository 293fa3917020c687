package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdpd/internal/discovery"
)

// SearchTroubleshooting is shown when a search finds nothing.
var SearchTroubleshooting = []string{
	"Check that this host and the responder share a network segment",
	"Allow inbound UDP on ephemeral ports through the local firewall",
	"Raise --timeout or --mx for slow responders",
	"Confirm the responder's udp_netmask includes this host",
}

// RenderDevices renders discovered devices. Styled output uses lipgloss;
// plain output is one tab-separated line per device for piping.
func RenderDevices(devices []*discovery.Device, width int, styled bool) string {
	if !styled {
		return renderDevicesPlain(devices)
	}

	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	blocks := make([]string, 0, len(devices))
	for _, d := range devices {
		blocks = append(blocks, renderDevice(d))
	}

	body := strings.Join(blocks, "\n\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(width-2).
		Padding(0, 1).
		Render(body)
}

func renderDevice(d *discovery.Device) string {
	lines := []string{DeviceUSNStyle.Render(d.USN)}
	field := func(key, value string) {
		if value == "" {
			return
		}
		lines = append(lines, DeviceFieldStyle.Render(key)+ResultValueStyle.Render(value))
	}

	field("Name", d.FriendlyName)
	field("Model", d.Model)
	field("Type", d.ServiceType)
	field("Location", d.Location)
	field("Server", d.Server)
	field("Address", d.IP)
	field("Hostname", d.Hostname)
	field("Cache", d.CacheControl)
	field("Source", string(d.Source))
	return strings.Join(lines, "\n")
}

func renderDevicesPlain(devices []*discovery.Device) string {
	var b strings.Builder
	for _, d := range devices {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\n", d.USN, d.ServiceType, d.Location, d.IP, d.Source)
	}
	return b.String()
}
