// Package metrics holds the daemon's in-process counters: no external
// backend, no scrape endpoint, just mutex-guarded counters the out-of-scope CLI
// STATUS response would eventually read via Snapshot. Grounded on
// infrastructure/telemetry/trafficstats's atomic-counter-per-metric style,
// generalized here to one set of counters per tunnel name.
package metrics

import "sync"

// TunnelSnapshot is one tunnel's counters at the moment Snapshot was called.
type TunnelSnapshot struct {
	SessionsEstablished int64
	SessionsClosed      int64
	ReconnectAttempts   int64
	BytesRelayed        int64
}

type tunnelCounters struct {
	mu                  sync.Mutex
	sessionsEstablished int64
	sessionsClosed      int64
	reconnectAttempts   int64
	bytesRelayed        int64
}

// Counters implements application.Metrics.
type Counters struct {
	mu      sync.Mutex
	tunnels map[string]*tunnelCounters
}

func New() *Counters {
	return &Counters{tunnels: make(map[string]*tunnelCounters)}
}

func (c *Counters) counterFor(tunnel string) *tunnelCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tunnels[tunnel]
	if !ok {
		t = &tunnelCounters{}
		c.tunnels[tunnel] = t
	}
	return t
}

func (c *Counters) SessionEstablished(tunnel string) {
	t := c.counterFor(tunnel)
	t.mu.Lock()
	t.sessionsEstablished++
	t.mu.Unlock()
}

func (c *Counters) SessionClosed(tunnel string) {
	t := c.counterFor(tunnel)
	t.mu.Lock()
	t.sessionsClosed++
	t.mu.Unlock()
}

func (c *Counters) ReconnectAttempt(tunnel string) {
	t := c.counterFor(tunnel)
	t.mu.Lock()
	t.reconnectAttempts++
	t.mu.Unlock()
}

func (c *Counters) BytesRelayed(tunnel string, n int64) {
	if n <= 0 {
		return
	}
	t := c.counterFor(tunnel)
	t.mu.Lock()
	t.bytesRelayed += n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of every tunnel's counters.
func (c *Counters) Snapshot() map[string]TunnelSnapshot {
	c.mu.Lock()
	names := make([]string, 0, len(c.tunnels))
	tunnels := make([]*tunnelCounters, 0, len(c.tunnels))
	for name, t := range c.tunnels {
		names = append(names, name)
		tunnels = append(tunnels, t)
	}
	c.mu.Unlock()

	out := make(map[string]TunnelSnapshot, len(names))
	for i, name := range names {
		t := tunnels[i]
		t.mu.Lock()
		out[name] = TunnelSnapshot{
			SessionsEstablished: t.sessionsEstablished,
			SessionsClosed:      t.sessionsClosed,
			ReconnectAttempts:   t.reconnectAttempts,
			BytesRelayed:        t.bytesRelayed,
		}
		t.mu.Unlock()
	}
	return out
}
