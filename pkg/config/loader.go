package config

import (
	"github.com/BurntSushi/toml"
)

// Load reads a TOML configuration file at path, merged on top of the
// built-in defaults. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
