package stage

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// pidCheckTimeout bounds a single liveness lookup.
const pidCheckTimeout = 2 * time.Second

// processAlive reports whether pid refers to a running process. Lookup
// failures count as alive so that an unreadable process table never lets a
// second run take over a live marker.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), pidCheckTimeout)
	defer cancel()

	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return true
	}
	return alive
}
