package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/pdkslab/pdksgate/internal/gate/relay"
)

// LoadDialects reads a device-serial to dialect map. Files ending in .yaml
// or .yml are YAML; anything else is JSON with comments allowed:
//
//	{
//	  // legacy lobby readers
//	  "SN-0001": "success",
//	  "SN-0002": "confirmation"
//	}
func LoadDialects(path string) (map[string]relay.Dialect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialects file: %w", err)
	}

	raw := map[string]string{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse dialects file %s: %w", path, err)
	}

	out := make(map[string]relay.Dialect, len(raw))
	for serial, name := range raw {
		serial = strings.TrimSpace(serial)
		if serial == "" {
			return nil, fmt.Errorf("dialects file %s: empty device serial", path)
		}
		d, err := relay.ParseDialect(name)
		if err != nil {
			return nil, fmt.Errorf("dialects file %s: serial %s: %w", path, serial, err)
		}
		out[serial] = d
	}
	return out, nil
}
