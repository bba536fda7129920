package directory

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
)

// Seed is a batch of listings for bulk import. YAML:
//
//	businesses:
//	  - category: grocery
//	    shop_name: Sharma Kirana
//	    owner_name: Ramesh Sharma
//	    contact_number: "9876543210"
//	    services: [Atta, Dal]
//
// TOML uses [[businesses]] tables with the same keys.
type Seed struct {
	Businesses []types.Business `yaml:"businesses" toml:"businesses"`
}

// LoadSeed reads a seed file, choosing the decoder by extension
// (.yaml, .yml or .toml)
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, errors.Wrapf(err, "read seed %s", path)
	}

	var seed Seed
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&seed); err != nil {
			return Seed{}, errors.Wrapf(err, "parse YAML seed %s", path)
		}
	case ".toml":
		md, err := toml.Decode(string(raw), &seed)
		if err != nil {
			return Seed{}, errors.Wrapf(err, "parse TOML seed %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Seed{}, errors.Newf("unknown keys in TOML seed %s: %v", path, undecoded)
		}
	default:
		return Seed{}, errors.WithHint(
			errors.NewInvalidRequestError("unsupported seed format %q", filepath.Ext(path)),
			"Use a .yaml, .yml or .toml file",
		)
	}

	for i := range seed.Businesses {
		seed.Businesses[i] = types.NormalizeBusiness(seed.Businesses[i])
	}
	return seed, nil
}
