// Package discovery finds SSDP responders on the local network.
//
// Scanner is an SSDP client: it sends an M-SEARCH to the multicast group (or
// directly to one responder) and collects the unicast 200 OK answers.
// MDNSScanner browses the companion mDNS advertisement that ssdpd publishes
// next to its SSDP records.
//
// # Discovery Process
//
// The SSDP search works as follows:
//  1. Opens an ephemeral UDP socket
//  2. Sends the M-SEARCH twice to the group with the requested ST and MX
//  3. Collects 200 OK responses until the timeout or cancellation
//  4. Drops anything that does not parse or carries no USN
//  5. Returns one Device per USN, sorted
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.SearchTarget = "upnp:rootdevice"
//	scanner.Timeout = 3 * time.Second
//
//	devices, err := scanner.Search(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Printf("%s at %s\n", d.USN, d.Location)
//	}
//
// # Network Requirements
//
//   - Requires multicast support on the outgoing interface
//   - Responders must be on the same network segment (TTL 2)
//   - Firewall must allow inbound UDP on the ephemeral port for answers,
//     and UDP 5353 for mDNS browsing
//
// # Thread Safety
//
// Scanners hold no state between calls. Multiple searches can run
// simultaneously; each uses its own socket.
package discovery
