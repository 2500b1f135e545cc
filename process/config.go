package process

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the ambient process configuration: process identity, the
// directories and socket address every daemon built on this runtime needs,
// and the startup resource-tuning knobs. This is distinct from (and does
// not replace) any per-command handler configuration a consuming
// application loads on its own.
type Config struct {
	Name             string  `toml:"name"`
	PIDDir           string  `toml:"pid_dir"`
	ProcDir          string  `toml:"proc_dir"`
	ListenAddr       string  `toml:"listen_addr"`
	CriticalStateDir string  `toml:"critical_state_dir"`
	DebugLevel       string  `toml:"debug_level"`
	MemLimitRatio    float64 `toml:"mem_limit_ratio"`
	ServiceTablePath string  `toml:"service_table_path"`
}

// DefaultConfig returns the configuration a daemon gets when no TOML file
// overrides it.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		PIDDir:           "/var/run",
		ProcDir:          "/var/run",
		ListenAddr:       ":0",
		CriticalStateDir: "/critical_state",
		DebugLevel:       "warn",
		MemLimitRatio:    0.9,
	}
}

// LoadConfig reads a TOML configuration file, starting from
// DefaultConfig(name) and letting any field present in the file override
// it.
func LoadConfig(path, name string) (Config, error) {
	cfg := DefaultConfig(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("process: decode config %s: %w", path, err)
	}
	return cfg, nil
}
