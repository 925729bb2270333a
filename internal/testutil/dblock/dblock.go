// Package dblock serializes integration tests that share one database across
// package test binaries.
package dblock

import (
	"net"
	"time"
)

// The lock is a bound loopback port; the OS releases it if a test binary dies.
const lockAddr = "127.0.0.1:45433"

// Acquire blocks until this process holds the lock and returns its release.
func Acquire() (release func()) {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
