// Package ssdp implements an SSDP (Simple Service Discovery Protocol)
// responder: the multicast half of UPnP discovery.
//
// The hosting application registers the services it offers as
// ServiceRecords. The Service then announces each one to the multicast group,
// answers M-SEARCH discovery requests for matching search targets, and
// withdraws everything with byebye notifications on shutdown.
//
// # Message Flow
//
//  1. Listen opens 0.0.0.0:1900 with address reuse and joins 239.255.255.250
//  2. Register stores a record and multicasts NOTIFY ssdp:alive twice
//  3. Serve reads datagrams with a one second deadline, dropping any whose
//     source falls outside the configured netmask
//  4. M-SEARCH requests are answered with one unicast 200 OK per matching
//     local record, optionally delayed by a random amount within MX
//  5. Shutdown multicasts NOTIFY ssdp:byebye once per local record and
//     closes the socket
//
// # Usage Example
//
//	svc, err := ssdp.New(ssdp.Config{
//	    Netmask:        "192.168.1.0/24",
//	    StaggerReplies: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rec := ssdp.ServiceRecord{
//	    USN:         ssdp.BuildUSN(deviceUUID, ssdp.RootDevice),
//	    ServiceType: ssdp.RootDevice,
//	    Location:    "http://192.168.1.10:8080/device.xml",
//	}
//	if err := svc.Start(ctx, rec); err != nil {
//	    log.Fatal(err)
//	}
//
// # Search Targets
//
// "ssdp:all" matches every local record that is not Silent. Any other ST
// must equal a record's ServiceType exactly. Remote records are stored but
// never answered or announced.
//
// # Error Handling
//
// Errors carry an ErrorType. Configuration errors are fatal and surface from
// New. Malformed and validation errors are per-datagram: the receive loop logs
// them at debug level and keeps running. Network errors from sends are
// logged; a failing receive stops the loop.
package ssdp
