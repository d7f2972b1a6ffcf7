// Package dblock serializes test packages that share the integration
// database. go test runs packages in parallel processes, so the mutex is a
// loopback listener rather than a sync.Mutex.
package dblock

import (
	"net"
	"time"
)

const lockAddr = "127.0.0.1:45433"

func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
