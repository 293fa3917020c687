package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muurk/ssdpd/internal/description"
	"github.com/muurk/ssdpd/internal/discovery"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
		forceInit = false
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "ssdpd ") || !strings.Contains(out, "UPnP/1.0") {
		t.Errorf("version output = %q", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, "uuid:") || !strings.Contains(out, "/device.xml") {
		t.Errorf("config init output = %q", out)
	}

	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("config init should refuse to overwrite without --force")
	}

	out, err = execute(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, s := range []string{"version: 1", "udp_netmask:", "admin_port: 5004"} {
		if !strings.Contains(out, s) {
			t.Errorf("config show output missing %q:\n%s", s, out)
		}
	}
}

func TestDescribeDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/device.xml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<root><device><friendlyName>Den</friendlyName><modelName>Box</modelName><modelNumber>2</modelNumber><UDN>uuid:ABC</UDN></device></root>`))
	}))
	defer srv.Close()

	devices := []*discovery.Device{
		{USN: "uuid:ABC::upnp:rootdevice", Location: srv.URL + "/device.xml"},
		{USN: "uuid:DEF", Location: srv.URL + "/missing.xml"},
		{USN: "uuid:GHI"},
	}
	describeDevices(context.Background(), description.NewClient(), devices)

	if devices[0].FriendlyName != "Den" || devices[0].Model != "Box 2" {
		t.Errorf("described device = %+v", devices[0])
	}
	if devices[1].FriendlyName != "" || devices[2].FriendlyName != "" {
		t.Error("devices without a description should be left alone")
	}
}

func TestBrowseNeedsTerminal(t *testing.T) {
	// Test binaries write to a pipe, never a terminal.
	if _, err := execute(t, "browse"); err == nil || !strings.Contains(err.Error(), "interactive terminal") {
		t.Errorf("browse error = %v, want terminal error", err)
	}
}
