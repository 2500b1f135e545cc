package cmdproto

import (
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"
)

// ServiceEntry names one multicast destination: a group address and
// port, looked up by a short service name (e.g. "test1").
type ServiceEntry struct {
	Group string `toml:"group"`
	Port  int    `toml:"port"`
}

func (s ServiceEntry) addr() (net.IP, error) {
	ip := net.ParseIP(s.Group)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("cmdproto: service group %q is not a valid IPv4 multicast address", s.Group)
	}
	return ip, nil
}

// builtinServiceTable mirrors a handful of entries original_source's
// static name table ships; LoadServiceTable merges a loaded override over
// it. /etc/services is not read.
var builtinServiceTable = map[string]ServiceEntry{
	"test1":     {Group: "234.192.101.1", Port: 52003},
	"test2":     {Group: "234.192.101.2", Port: 52004},
	"telemetry": {Group: "234.192.101.10", Port: 52010},
	"command":   {Group: "234.192.101.11", Port: 52011},
}

// serviceTableConfig is the on-disk shape LoadServiceTable expects: a
// TOML document with a top-level "services" table keyed by service name.
type serviceTableConfig struct {
	Services map[string]ServiceEntry `toml:"services"`
}

// LoadServiceTable reads a TOML file of [services.<name>] group/port
// entries and returns it merged over the built-in table (entries in the
// file take precedence), matching the spec's "consult /etc/services
// first [or a configured table], fall back to the built-in table" rule
// at the config layer rather than by parsing /etc/services directly.
func LoadServiceTable(path string) (map[string]ServiceEntry, error) {
	merged := make(map[string]ServiceEntry, len(builtinServiceTable))
	for k, v := range builtinServiceTable {
		merged[k] = v
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return merged, nil
	}

	var cfg serviceTableConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("cmdproto: loading service table %s: %w", path, err)
	}
	for k, v := range cfg.Services {
		merged[k] = v
	}
	return merged, nil
}
