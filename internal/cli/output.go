package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"ephemcp/internal/api"
	"ephemcp/internal/server"
	strutil "ephemcp/pkg/strings"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON formats output as raw JSON data
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML data converted from JSON
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, json, yaml)", format)
	}
}

// Printer writes command results in the selected format.
type Printer struct {
	Out       io.Writer
	Format    OutputFormat
	NoHeaders bool
	// Now is used for AGE columns.
	Now func() time.Time
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, format OutputFormat) *Printer {
	return &Printer{Out: out, Format: format, Now: time.Now}
}

// Print writes v as JSON or YAML. Table output is handled by the typed
// Print* methods, which fall back to this for the structured formats.
func (p *Printer) Print(v interface{}) error {
	switch p.Format {
	case OutputFormatYAML:
		// Round-trip through JSON so the json tags decide field names.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("failed to convert to YAML: %w", err)
		}
		_, err = p.Out.Write(out)
		return err
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.Out, string(data))
		return err
	}
}

// PrintServers renders list_mcp_servers output.
func (p *Printer) PrintServers(servers []server.ServerInfo) error {
	if p.Format != OutputFormatTable {
		return p.Print(servers)
	}
	if len(servers) == 0 {
		_, err := fmt.Fprintln(p.Out, text.FgYellow.Sprint("No servers found"))
		return err
	}

	t := p.newTable("ID", "STATE", "SOURCE", "URL", "AGE")
	for _, s := range servers {
		source := s.Image
		if s.Runtime != "" {
			source = s.Runtime
		}
		url := s.URL
		if url == "" && s.LastError != "" {
			url = text.FgRed.Sprint(strutil.Truncate(s.LastError, strutil.ErrorMaxLen))
		}
		t.AppendRow(table.Row{s.ID, ColorState(s.State), source, url, p.age(s.CreatedAt)})
	}
	t.Render()
	return nil
}

// PrintPresets renders the preset catalog.
func (p *Printer) PrintPresets(presets []server.PresetInfo) error {
	if p.Format != OutputFormatTable {
		return p.Print(presets)
	}
	if len(presets) == 0 {
		_, err := fmt.Fprintln(p.Out, text.FgYellow.Sprint("No presets found"))
		return err
	}

	t := p.newTable("NAME", "SOURCE", "REQUIRED ENV", "DESCRIPTION")
	for _, preset := range presets {
		t.AppendRow(table.Row{preset.Name, preset.Source, strings.Join(preset.RequiredEnv, ","), strutil.Truncate(preset.Description, strutil.DescriptionMaxLen)})
	}
	t.Render()
	return nil
}

// PrintHandle renders a single server handle as key/value rows.
func (p *Printer) PrintHandle(h api.ServerHandle) error {
	if p.Format != OutputFormatTable {
		return p.Print(h)
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(plainStyle())
	rows := []table.Row{
		{"ID", h.ID},
		{"State", ColorState(h.State)},
		{"Namespace", h.Namespace},
		{"Job", h.ComputeUnitName},
		{"Service", h.EndpointName},
		{"Image", h.Spec.Image},
	}
	if h.Spec.Runtime != nil {
		rows = append(rows, table.Row{"Runtime", h.Spec.Runtime.Exec + " " + h.Spec.Runtime.Package})
	}
	if h.Endpoint != nil {
		rows = append(rows, table.Row{"URL", h.Endpoint.URL()})
	}
	rows = append(rows, table.Row{"Age", p.age(h.CreatedAt)})
	if h.LastError != "" {
		rows = append(rows, table.Row{"Last error", text.FgRed.Sprint(h.LastError)})
	}
	t.AppendRows(rows)
	t.Render()
	return nil
}

func (p *Printer) newTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(plainStyle())
	if !p.NoHeaders {
		row := make(table.Row, 0, len(headers))
		for _, h := range headers {
			row = append(row, h)
		}
		t.AppendHeader(row)
	}
	return t
}

func (p *Printer) age(since time.Time) string {
	if since.IsZero() {
		return "<unknown>"
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return HumanDuration(now().Sub(since))
}

// plainStyle is a kubectl-like borderless style.
func plainStyle() table.Style {
	style := table.StyleLight
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	style.Options.SeparateHeader = false
	style.Options.SeparateRows = false
	style.Format.Header = text.FormatDefault
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "   "
	return style
}

// ColorState colors a state for terminal output.
func ColorState(s api.State) string {
	switch s {
	case api.StateReady, api.StateRunning:
		return text.FgGreen.Sprint(string(s))
	case api.StatePending, api.StateWaiting:
		return text.FgYellow.Sprint(string(s))
	case api.StateTerminating, api.StateDeleted:
		return text.FgHiBlack.Sprint(string(s))
	case api.StateFailed:
		return text.FgRed.Sprint(string(s))
	default:
		return string(s)
	}
}

// HumanDuration formats d like kubectl's AGE column.
func HumanDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
