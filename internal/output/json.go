package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// JSONFormatter renders dataset data as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format renders d.Data as JSON.
func (f *JSONFormatter) Format(d Dataset) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(d.Data, "", "  ")
	} else {
		data, err = json.Marshal(d.Data)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// YAMLFormatter renders dataset data as YAML.
type YAMLFormatter struct{}

// Format renders d.Data as YAML.
func (f *YAMLFormatter) Format(d Dataset) (string, error) {
	data, err := yaml.Marshal(d.Data)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
