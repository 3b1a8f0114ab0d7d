// Package registry implements the Connections Registry: the
// single source of truth for which tunnels this daemon hosts, reloadable
// from disk and mirrored 1:1 into Peer Engine connections.
package registry

import (
	"fmt"
	"sync"

	"bhid/application"
	"bhid/domain/tunnel"
	"bhid/infrastructure/config"
)

type Registry struct {
	path   string
	logger application.Logger
	engine application.PeerEngine

	mu      sync.Mutex
	file    *config.File
	imports map[tunnel.Key]*tunnel.Definition
}

func New(path string, engine application.PeerEngine, logger application.Logger) *Registry {
	return &Registry{
		path:    path,
		engine:  engine,
		logger:  logger,
		imports: make(map[tunnel.Key]*tunnel.Definition),
	}
}

// Load reads the config file, rebuilds the in-memory map, and for every
// entry closes then reopens the matching Peer connection; entries no
// longer present are closed. Failure leaves the previous map intact.
func (r *Registry) Load() error {
	next, err := config.Load(r.path)
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}

	r.mu.Lock()
	previous := r.file
	r.mu.Unlock()

	if previous != nil {
		for key, def := range previous.Tunnels {
			if _, stillPresent := next.Tunnels[key]; !stillPresent {
				if err := r.engine.Close(key.Tracker, key.Name); err != nil {
					r.logger.Printf("close removed tunnel %s: %v", key, err)
				}
				_ = def
			}
		}
	}

	for key, def := range next.Tunnels {
		if err := r.open(key.Tracker, def); err != nil {
			r.logger.Printf("open tunnel %s: %v", key, err)
		}
	}

	r.mu.Lock()
	r.file = next
	r.mu.Unlock()
	return nil
}

func (r *Registry) open(tracker string, def *tunnel.Definition) error {
	if err := r.engine.Close(tracker, def.Key.Name); err != nil {
		r.logger.Printf("close before reopen %s: %v", def.Key, err)
	}
	if def.Role == tunnel.Server {
		return r.engine.OpenServer(tracker, def)
	}
	return r.engine.OpenClient(tracker, def)
}

// Save persists the in-memory map to the config file.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return fmt.Errorf("registry: nothing loaded yet")
	}
	return config.Save(r.path, r.file)
}

// Set replaces all entries for tracker with list, persists, zeroes each
// entry's connected counter, and repeats the close/open dance for tracker
// only.
func (r *Registry) Set(tracker string, list []*tunnel.Definition) error {
	r.mu.Lock()
	if r.file == nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: nothing loaded yet")
	}

	var removed []tunnel.Key
	for key := range r.file.Tunnels {
		if key.Tracker == tracker {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		delete(r.file.Tunnels, key)
	}
	for _, def := range list {
		def.Key.Tracker = tracker
		def.ResetConnected()
		r.file.Tunnels[def.Key] = def
	}
	file := r.file
	r.mu.Unlock()

	for _, key := range removed {
		if err := r.engine.Close(key.Tracker, key.Name); err != nil {
			r.logger.Printf("close during set %s: %v", key, err)
		}
	}
	for _, def := range list {
		if err := r.open(tracker, def); err != nil {
			r.logger.Printf("open during set %s: %v", def.Key, err)
		}
	}

	return config.Save(r.path, file)
}

// Update upserts a single entry.
func (r *Registry) Update(tracker, name string, role tunnel.Role, def *tunnel.Definition, restart bool) error {
	key := tunnel.Key{Tracker: tracker, Name: name}
	def.Key = key
	def.Role = role

	r.mu.Lock()
	if r.file == nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: nothing loaded yet")
	}
	existing, present := r.file.Tunnels[key]
	if present && !restart {
		def.ResetConnected()
		for i := int32(0); i < existing.Connected(); i++ {
			def.IncConnected()
		}
	}
	r.file.Tunnels[key] = def
	file := r.file
	r.mu.Unlock()

	if !present || restart {
		if err := r.open(tracker, def); err != nil {
			r.logger.Printf("open during update %s: %v", key, err)
		}
	}

	return config.Save(r.path, file)
}

// Delete removes an entry and closes its Peer connection.
func (r *Registry) Delete(tracker, name string, role tunnel.Role) error {
	key := tunnel.Key{Tracker: tracker, Name: name}

	r.mu.Lock()
	if r.file == nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: nothing loaded yet")
	}
	delete(r.file.Tunnels, key)
	file := r.file
	r.mu.Unlock()

	if err := r.engine.Close(tracker, name); err != nil {
		r.logger.Printf("close during delete %s: %v", key, err)
	}
	return config.Save(r.path, file)
}

// Get returns a read-only snapshot of tracker's entries.
func (r *Registry) Get(tracker string) []*tunnel.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	var out []*tunnel.Definition
	for key, def := range r.file.Tunnels {
		if key.Tracker == tracker {
			out = append(out, def.Clone())
		}
	}
	return out
}

// GetAll returns a read-only snapshot of every tracker's entries.
func (r *Registry) GetAll() map[string][]*tunnel.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]*tunnel.Definition)
	if r.file == nil {
		return out
	}
	for key, def := range r.file.Tunnels {
		out[key.Tracker] = append(out[key.Tracker], def.Clone())
	}
	return out
}

// Import stages a list without activating it (used by the out-of-scope CLI
// import flow).
func (r *Registry) Import(tracker, token string, list []*tunnel.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range list {
		def.Key.Tracker = tracker
		r.imports[def.Key] = def
	}
	return nil
}

// GetImport retrieves a staged entry.
func (r *Registry) GetImport(tracker, name string) (*tunnel.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.imports[tunnel.Key{Tracker: tracker, Name: name}]
	return def, ok
}

var _ application.Registry = (*Registry)(nil)
