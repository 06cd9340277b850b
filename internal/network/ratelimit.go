package network

import (
	"net"
	"sync"
	"time"
)

// rateTracker tracks per-IP accept counts within a rolling one second window.
type rateTracker struct {
	mu        sync.Mutex
	counts    map[string]*rateBucket
	maxPerSec int
	now       func() time.Time
	lastSweep time.Time
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

func newRateTracker(maxPerSec int) *rateTracker {
	return &rateTracker{
		counts:    make(map[string]*rateBucket),
		maxPerSec: maxPerSec,
		now:       time.Now,
	}
}

// allow reports whether ip may open another connection. A non-positive
// limit allows everything.
func (rt *rateTracker) allow(ip string) bool {
	if rt.maxPerSec <= 0 {
		return true
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := rt.now()
	if now.Sub(rt.lastSweep) >= time.Minute {
		rt.sweep(now)
	}

	b, exists := rt.counts[ip]
	if !exists || now.Sub(b.windowStart) >= time.Second {
		rt.counts[ip] = &rateBucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= rt.maxPerSec
}

// sweep drops buckets whose window has long expired.
func (rt *rateTracker) sweep(now time.Time) {
	for ip, b := range rt.counts {
		if now.Sub(b.windowStart) >= time.Second {
			delete(rt.counts, ip)
		}
	}
	rt.lastSweep = now
}

func extractIP(addr net.Addr) string {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
