// Package tui implements the interactive device browser behind
// "ssdpd browse".
//
// The browser is a single Bubble Tea model. It runs a search, lists every
// device that answered, and can re-run the search on an interval. Selecting
// a device opens a detail view that fetches the UPnP description behind its
// LOCATION.
//
// # Screens
//
//   - Scanning: spinner and progress bar while an M-SEARCH is outstanding
//   - Results: filterable device list, or troubleshooting hints when empty
//   - Detail: the SSDP headers plus the fetched description
//   - Target editor: change the search target and rescan
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	err := tui.Run(tui.Options{
//	    Context: ctx,
//	    Scan: func(ctx context.Context, st string) ([]*discovery.Device, error) {
//	        s := *scanner
//	        s.SearchTarget = st
//	        return s.Search(ctx)
//	    },
//	    Describe: description.NewClient().Fetch,
//	    Interval: 30 * time.Second,
//	})
//
// Scan and Describe run as tea.Cmds, off the update loop. Results come back
// as messages so the model itself is never shared between goroutines.
package tui
