// Package config reads and writes the daemon's INI configuration file:
// daemon settings, tracker records, and tunnel definitions, split across
// reader/validate/manager responsibilities (see DESIGN.md), using
// gopkg.in/ini.v1 for the underlying format.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"bhid/domain/tunnel"
)

const (
	DefaultDaemonPort  = 42049
	DefaultTrackerPort = 42042
	MinMTU             = 21
)

// DaemonSettings is the [daemon] section.
type DaemonSettings struct {
	Port int
	MTU  int // 0 means "unset / no override"
}

// TrackerRecord is one configured tracker.
type TrackerRecord struct {
	Host    string
	Port    int
	CAFile  string
	Token   string
	Default bool
}

// File is the full parsed configuration: daemon settings, trackers, and
// tunnel definitions, plus any sections this daemon does not understand
// (merged back in verbatim on Save).
type File struct {
	Daemon   DaemonSettings
	Trackers map[string]*TrackerRecord
	Tunnels  map[tunnel.Key]*tunnel.Definition

	raw *ini.File
}

func roleSuffix(sectionName string) (tunnel.Role, bool) {
	switch {
	case strings.HasSuffix(sectionName, ":server"):
		return tunnel.Server, true
	case strings.HasSuffix(sectionName, ":client"):
		return tunnel.Client, true
	default:
		return tunnel.UnknownRole, false
	}
}

// Load parses path into a File.
func Load(path string) (*File, error) {
	raw, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return parse(raw)
}

// LoadBytes parses in-memory INI content, primarily for tests.
func LoadBytes(data []byte) (*File, error) {
	raw, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return parse(raw)
}

func parse(raw *ini.File) (*File, error) {
	f := &File{
		Trackers: make(map[string]*TrackerRecord),
		Tunnels:  make(map[tunnel.Key]*tunnel.Definition),
		raw:      raw,
	}

	if s, err := raw.GetSection("daemon"); err == nil {
		f.Daemon.Port = s.Key("port").MustInt(DefaultDaemonPort)
		f.Daemon.MTU = s.Key("mtu").MustInt(0)
		if f.Daemon.MTU != 0 && f.Daemon.MTU < MinMTU {
			return nil, fmt.Errorf("config: mtu %d is below the minimum of %d", f.Daemon.MTU, MinMTU)
		}
	} else {
		f.Daemon.Port = DefaultDaemonPort
	}

	for _, s := range raw.Sections() {
		name := s.Name()
		if name == "DEFAULT" || name == "daemon" {
			continue
		}

		if strings.HasSuffix(name, ":tracker") {
			host := strings.TrimSuffix(name, ":tracker")
			f.Trackers[host] = &TrackerRecord{
				Host:    host,
				Port:    s.Key("port").MustInt(DefaultTrackerPort),
				CAFile:  s.Key("ca_file").String(),
				Token:   s.Key("token").String(),
				Default: s.Key("default").MustBool(false),
			}
			continue
		}

		role, ok := roleSuffix(name)
		if !ok {
			continue // unrecognized section; preserved verbatim via f.raw on Save
		}

		body := strings.TrimSuffix(name, ":server")
		body = strings.TrimSuffix(body, ":client")
		parts := strings.SplitN(body, "#", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: malformed tunnel section %q", name)
		}
		key := tunnel.Key{Tracker: parts[0], Name: parts[1]}

		def := &tunnel.Definition{
			Key:       key,
			Role:      role,
			Encrypted: s.Key("encrypted").MustBool(false),
			Fixed:     s.Key("fixed").MustBool(false),
		}

		switch role {
		case tunnel.Server:
			def.ConnectAddress = s.Key("connect_address").String()
			def.ConnectPort = s.Key("connect_port").MustInt(0)
			if clients := s.Key("clients").String(); clients != "" {
				for _, c := range strings.Split(clients, ",") {
					c = strings.TrimSpace(c)
					if c != "" {
						def.Clients = append(def.Clients, c)
					}
				}
			}
		case tunnel.Client:
			def.ListenAddress = s.Key("listen_address").String()
			def.ListenPort = s.Key("listen_port").String()
			def.Server = s.Key("server").String()
		}

		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("config: tunnel %s: %w", key, err)
		}
		f.Tunnels[key] = def
	}

	return f, nil
}

// Save writes f back to path, merging with any non-tunnel, non-tracker,
// non-daemon sections the original file held").
func Save(path string, f *File) error {
	out := f.raw
	if out == nil {
		out = ini.Empty()
	}

	daemonSection, _ := out.NewSection("daemon")
	daemonSection.Key("port").SetValue(strconv.Itoa(f.Daemon.Port))
	if f.Daemon.MTU != 0 {
		daemonSection.Key("mtu").SetValue(strconv.Itoa(f.Daemon.MTU))
	}

	for _, sec := range out.Sections() {
		name := sec.Name()
		if name == "DEFAULT" || name == "daemon" || strings.HasSuffix(name, ":tracker") {
			continue
		}
		if _, ok := roleSuffix(name); ok {
			out.DeleteSection(name)
		}
	}

	for host, t := range f.Trackers {
		sec, _ := out.NewSection(host + ":tracker")
		sec.Key("port").SetValue(strconv.Itoa(t.Port))
		if t.CAFile != "" {
			sec.Key("ca_file").SetValue(t.CAFile)
		}
		if t.Token != "" {
			sec.Key("token").SetValue(t.Token)
		}
		sec.Key("default").SetValue(strconv.FormatBool(t.Default))
	}

	for key, def := range f.Tunnels {
		roleWord := "server"
		if def.Role == tunnel.Client {
			roleWord = "client"
		}
		sec, err := out.NewSection(fmt.Sprintf("%s#%s:%s", key.Tracker, key.Name, roleWord))
		if err != nil {
			return fmt.Errorf("config: create section for %s: %w", key, err)
		}
		sec.Key("encrypted").SetValue(strconv.FormatBool(def.Encrypted))
		sec.Key("fixed").SetValue(strconv.FormatBool(def.Fixed))

		switch def.Role {
		case tunnel.Server:
			sec.Key("connect_address").SetValue(def.ConnectAddress)
			sec.Key("connect_port").SetValue(strconv.Itoa(def.ConnectPort))
			if len(def.Clients) > 0 {
				sec.Key("clients").SetValue(strings.Join(def.Clients, ","))
			}
		case tunnel.Client:
			sec.Key("listen_address").SetValue(def.ListenAddress)
			sec.Key("listen_port").SetValue(def.ListenPort)
			sec.Key("server").SetValue(def.Server)
		}
	}

	if err := out.SaveTo(path); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	f.raw = out
	return nil
}
