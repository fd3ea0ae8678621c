package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/srg/asyncble/pkg/config"
	"golang.org/x/term"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// outputFormat picks the flag value over the configured default.
func outputFormat(flag string, cfg *config.Config) (string, error) {
	format := flag
	if format == "" {
		format = cfg.OutputFormat
	}
	if format != formatText && format != formatJSON {
		return "", fmt.Errorf("invalid format '%s': must be one of [%s %s]", format, formatText, formatJSON)
	}
	return format, nil
}

// palette colors text output written to a terminal.
type palette struct {
	header *color.Color
	name   *color.Color
	dim    *color.Color
}

func newPalette(w io.Writer) *palette {
	p := &palette{
		header: color.New(color.Bold),
		name:   color.New(color.FgCyan),
		dim:    color.New(color.Faint),
	}
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}
	for _, c := range []*color.Color{p.header, p.name, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatValue renders a value as hex with its printable text, if any.
func formatValue(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	s := hex.EncodeToString(b)
	if printable(b) {
		s += fmt.Sprintf(" (%q)", string(b))
	}
	return s
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// displayName is the SIG name of a UUID, or the UUID itself.
func displayName(uuid, name string) string {
	if name == "" {
		return uuid
	}
	return fmt.Sprintf("%s (%s)", uuid, name)
}
