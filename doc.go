// Package hyperlockd implements a single-process coordination service for a
// wide-area, range-partitioned storage system: a hierarchical namespace with
// POSIX-like extended attributes, lease-based sessions, a shared/exclusive
// lock manager with FIFO fairness, and an at-least-once event notification
// pipeline delivered over a small binary wire protocol.
//
// Example:
//
//	cfg := hyperlockd.Config{BaseDir: "/var/lib/hyperlockd", Listen: ":38550"}
//	srv, err := hyperlockd.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Start()
package hyperlockd
