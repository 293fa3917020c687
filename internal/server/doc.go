// Package server wires the configuration file to the SSDP responder and the
// companion mDNS advertisement, and owns the daemon lifecycle.
//
// # Lifecycle
//
//  1. New validates the configuration and builds the responder and advertiser
//  2. Run opens the SSDP socket, then registers the root device and every
//     extra type so each one is announced as soon as it is stored
//  3. The mDNS record is published; failure there is logged, not fatal
//  4. The receive loop runs until the context is cancelled
//  5. Shutdown withdraws the mDNS record, multicasts byebye for every local
//     record and closes the socket
//
// Start wraps Run with SIGINT/SIGTERM handling for the serve command.
//
// # Advertised Records
//
// Every record shares the descriptor URL
// http://<web.accessible_ip>:<web.admin_port>/device.xml. The root device is
// always advertised as uuid:<main.uuid>::upnp:rootdevice; ssdp.extra_types
// adds one record per type.
//
// # Disabled SSDP
//
// With ssdp.disabled set no socket is opened. The server still publishes the
// mDNS record, if enabled, and waits for shutdown.
package server
