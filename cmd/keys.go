package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// loadAPIKeys reads the provider-to-key-list mapping the key vault rotates
// through: a JSON file path rather than an inline env value, standing in
// for whatever secret manager actually supplies the keys in production.
func loadAPIKeys(path string) (map[string][]string, error) {
	if path == "" {
		return map[string][]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read api keys file %s", path)
	}
	var keys map[string][]string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, eris.Wrapf(err, "parse api keys file %s", path)
	}
	return keys, nil
}
