// Package config provides configuration file management for ssdpd.
//
// The configuration is a YAML file holding the device identity, the address
// of the descriptor server, the SSDP responder settings and the optional mDNS
// advertisement. Values left empty are derived on first run and written back,
// so the device UUID stays stable across restarts.
//
// # Configuration File Location
//
// The default file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/ssdpd/config.yaml or $HOME/.config/ssdpd/config.yaml
//   - macOS: $HOME/.config/ssdpd/config.yaml
//   - Windows: %LOCALAPPDATA%\ssdpd\config.yaml
//
// # Example
//
//	version: 1
//	main:
//	    uuid: 6F8E2A4C-9B1D-11EE-8C90-0242AC120002
//	web:
//	    bind_ip: 0.0.0.0
//	    accessible_ip: 192.168.1.10
//	    admin_port: 5004
//	ssdp:
//	    disabled: false
//	    udp_netmask: 192.168.1.0/24
//	    stagger_replies: true
//	    multicast_loopback: true
//	    extra_types:
//	        - urn:schemas-upnp-org:device:MediaServer:1
//
// # Usage Example
//
//	cfg, path, err := config.LoadDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if changed, _ := cfg.ApplyDefaults(); changed {
//	    _ = cfg.Save(path)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Saves are serialized by a package mutex and written atomically through a
// temporary file and rename.
package config
