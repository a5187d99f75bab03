package travel

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadTable reads a YAML mode table and merges it over the defaults.
//
//	modes:
//	  walk:
//	    speed_kmh: 4.5
//	    fixed_delay_seconds: 0
//	    delay_factor: 1.15
func LoadTable(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "travel: read mode table %s", path)
	}
	return ParseTable(data)
}

// ParseTable parses YAML mode-table bytes. Modes missing from the document
// keep their default profile.
func ParseTable(data []byte) (*Model, error) {
	var doc struct {
		Modes map[string]Profile `yaml:"modes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "travel: parse mode table")
	}

	profiles := DefaultProfiles()
	for name, p := range doc.Modes {
		profiles[Mode(strings.ToLower(name))] = p
	}
	return NewModel(profiles)
}
