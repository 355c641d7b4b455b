package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func addFormatFlag(fs *pflag.FlagSet, p *string) {
	fs.StringVarP(p, "output", "o", "json", "output format: json, pretty or yaml")
}

// render writes v in the requested format. YAML goes through JSON first so
// field names match the json tags.
func render(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(v)
	case "pretty":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
