package turns

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadRequest reads a Request from a YAML file. Used by the CLI to replay
// saved conversations and by tests for fixtures.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read request %s", path)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrapf(err, "parse request %s", path)
	}
	return &req, nil
}

// SaveResult writes a Result to a YAML file.
func SaveResult(path string, result *Result) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write result %s", path)
	}
	return nil
}
