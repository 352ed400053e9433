package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type decodeFunc func(data []byte, out *map[string]any) error

// decoders maps lower-cased file extensions to their decoder.
var decoders = map[string]decodeFunc{
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
}

func decodeYAML(data []byte, out *map[string]any) error { return yaml.Unmarshal(data, out) }
func decodeJSON(data []byte, out *map[string]any) error { return json.Unmarshal(data, out) }

// FromFile loads configuration from a .yaml, .yml or .json file.
// ${VAR} and $VAR references in the file are replaced with environment
// variables before decoding; unset variables expand to "".
func FromFile(path string) (Config, error) {
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parse(decode, []byte(os.ExpandEnv(string(data))), path)
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	return parse(decodeYAML, data, "yaml")
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	return parse(decodeJSON, data, "json")
}

func parse(decode decodeFunc, data []byte, source string) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", source, err)
	}
	return New(m), nil
}
