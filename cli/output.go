package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

func validFormat(f string) error {
	switch f {
	case FormatText, FormatJSON, FormatYAML, FormatTOML:
		return nil
	}
	return fmt.Errorf("unknown format %q (use text, json, yaml or toml)", f)
}

// printer renders command results. Structured formats encode the value
// itself; text mode calls the command's table writer.
type printer struct {
	out    io.Writer
	format string
}

// print writes v. TOML documents must be tables, so v is nested under key
// there.
func (p *printer) print(key string, v any, text func(w *tabwriter.Writer)) error {
	switch p.format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = fmt.Fprintf(p.out, "%s\n", data)
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(p.out).Encode(map[string]any{key: v}); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		return nil
	default:
		w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
		text(w)
		return w.Flush()
	}
}

// message prints a line in text mode and a {key: value} document otherwise.
func (p *printer) message(key string, v any, format string, args ...any) error {
	return p.print(key, v, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, format+"\n", args...)
	})
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
