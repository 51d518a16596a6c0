// Command merkstore-inspect opens a Badger-backed merkstore store (with
// Badger's default read-write options; every subcommand issues only reads)
// and reports on it: the tracked roots and their counts, the
// set of keys eligible for garbage collection, and the storage backend's
// cache configuration. Unlike the teacher's arena-cache-inspect (which
// polls a remote process's HTTP debug endpoint), this inspector talks
// directly to the on-disk store — there is no running merkstore process
// to poll, only its data directory.
//
// © 2025 merkstore authors. MIT License.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
