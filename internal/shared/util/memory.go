package util

import (
	"fmt"
	"runtime"
)

// RuntimeUsage is a point-in-time view of process resources.
type RuntimeUsage struct {
	HeapAllocMB uint64
	NumGC       uint32
	Goroutines  int
}

// ReadRuntimeUsage samples heap, GC and goroutine counts.
func ReadRuntimeUsage() RuntimeUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeUsage{
		HeapAllocMB: m.Alloc / 1024 / 1024,
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}
}

func (u RuntimeUsage) String() string {
	return fmt.Sprintf("%d MB heap, %d goroutines, %d GCs", u.HeapAllocMB, u.Goroutines, u.NumGC)
}
