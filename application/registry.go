package application

import "bhid/domain/tunnel"

// Registry is the single source of truth for which tunnels this daemon
// hosts. Peer Engine is notified synchronously by method
// call, never by shared-state polling.
type Registry interface {
	// Load reads the config file, rebuilds the in-memory map, and for
	// every entry closes then reopens the matching Peer connection;
	// entries no longer present are closed. Failure leaves the previous
	// map intact.
	Load() error
	// Save persists the in-memory map to the config file, merging with any
	// non-tunnel sections that were present.
	Save() error

	// Set replaces all entries for tracker with list, persists, zeroes each
	// entry's connected counter, and repeats the close/open dance for
	// tracker only.
	Set(tracker string, list []*tunnel.Definition) error
	// Update upserts a single entry. If present and restart is true, the
	// Peer connection is closed and reopened; if restart is false, the
	// connected counter is preserved.
	Update(tracker, name string, role tunnel.Role, def *tunnel.Definition, restart bool) error
	// Delete removes an entry and closes its Peer connection.
	Delete(tracker, name string, role tunnel.Role) error

	// Get returns a read-only snapshot of tracker's entries.
	Get(tracker string) []*tunnel.Definition
	// GetAll returns a read-only snapshot of every tracker's entries.
	GetAll() map[string][]*tunnel.Definition

	// Import stages a list without activating it.
	Import(tracker, token string, list []*tunnel.Definition) error
	// GetImport retrieves a staged entry.
	GetImport(tracker, name string) (*tunnel.Definition, bool)
}
