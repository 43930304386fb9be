package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/gstgraph/internal/session"
)

// LoadDefaults reads the [defaults] table: the toggles a new session
// starts with. Keys left out keep session.DefaultConfig values, and a
// missing file yields session.DefaultConfig.
//
//	[defaults]
//	preview = true
//	persist = true
//	extension = "png"
//
//	[defaults.source]
//	kind = "pattern"
//	pattern = "smpte"
func LoadDefaults(path string) (session.Config, error) {
	raw := struct {
		Defaults session.Config `toml:"defaults"`
	}{Defaults: session.DefaultConfig()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return raw.Defaults, nil
	}
	if err != nil {
		return session.Config{}, fmt.Errorf("read defaults: %w", err)
	}
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return session.Config{}, fmt.Errorf("parse defaults: %w", err)
	}
	return raw.Defaults, nil
}
