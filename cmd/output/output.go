// Package output provides functions to print messages with optional color formatting
package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bygga/bygga/domain"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

const (
	Plain   = color.FgWhite
	Success = color.FgGreen
	Warning = color.FgYellow
	Error   = color.FgRed
)

const timeFormat = "2006-01-02 15:04:05"

var maybeColorize func(kind color.Attribute, tmpl string, a ...any) string

// InitColors sets up color functions based on environment
func InitColors(isColorDisabled bool) {
	if color.NoColor || isColorDisabled {
		maybeColorize = func(kind color.Attribute, tmpl string, a ...any) string {
			return fmt.Sprintf(tmpl, a...)
		}
	} else {
		maybeColorize = func(kind color.Attribute, tmpl string, a ...any) string {
			return color.New(kind).SprintfFunc()(tmpl, a...)
		}
	}
}

// PrintMessage formats a message with color (if enabled) and returns it with a trailing newline
func PrintMessage(kind color.Attribute, tmpl string, a ...any) string {
	if maybeColorize == nil || kind == Plain {
		return fmt.Sprintf(tmpl+"\n", a...)
	}
	return fmt.Sprintln(maybeColorize(kind, tmpl, a...))
}

func PrintTable(header []string, data [][]string) (string, error) {
	buf := strings.Builder{}

	table := tablewriter.NewTable(
		&buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines: tw.Lines{
					ShowHeaderLine: tw.Off,
				},
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{PerColumn: []tw.Align{tw.AlignRight, tw.AlignLeft}},
			},
		}))

	if len(header) > 0 {
		table.Header(header)
	}

	if err := table.Bulk(data); err != nil {
		return "", fmt.Errorf("bulk adding data to table: %w", err)
	}

	if err := table.Render(); err != nil {
		return "", fmt.Errorf("rendering table: %w", err)
	}

	return buf.String(), nil
}

// PrintSecretList renders secrets with masked values
func PrintSecretList(secrets []*domain.Secret, now time.Time) (string, error) {
	if len(secrets) == 0 {
		return PrintMessage(Plain, "No secrets found."), nil
	}

	header := []string{
		"ID",
		"Name",
		"Project",
		"Value",
		"Calls",
		"Expires At",
		"Usable",
	}
	var data [][]string
	for _, secret := range secrets {
		project := "-"
		if secret.ProjectID != nil {
			project = strconv.FormatInt(*secret.ProjectID, 10)
		}

		data = append(data, []string{
			strconv.FormatInt(secret.ID, 10),
			truncateString(secret.Name, 32),
			project,
			maskSensitiveValue(secret.Value),
			formatCalls(secret),
			formatOptionalTime(secret.ExpiresAt, "never"),
			strconv.FormatBool(secret.Usable(now)),
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing secret list table: %w", err)
	}
	return table, nil
}

// PrintTaskReport renders a task with the live state of its run
func PrintTaskReport(report *domain.TaskReport) (string, error) {
	project := "-"
	if report.Project != nil {
		project = fmt.Sprintf("%s (%d)", report.Project.Name, report.Project.ID)
	}
	conclusion := report.Conclusion
	if conclusion == "" {
		conclusion = "-"
	}

	data := [][]string{
		{"Task ID", strconv.FormatInt(report.Task.ID, 10)},
		{"Project", project},
		{"Run ID", strconv.FormatInt(report.Task.RunID, 10)},
		{"Status", report.Status.String()},
		{"Conclusion", conclusion},
		{"Created At", report.Task.CreatedAt.Format(timeFormat)},
		{"Updated At", report.UpdatedAt.Format(timeFormat)},
	}
	for _, artifact := range report.Artifacts {
		data = append(data, []string{"Artifact", fmt.Sprintf("%s (%d bytes)", artifact.Name, artifact.SizeInBytes)})
	}

	table, err := PrintTable([]string{}, data)
	if err != nil {
		return "", fmt.Errorf("printing task report table: %w", err)
	}
	return table, nil
}

func formatCalls(secret *domain.Secret) string {
	if remaining := secret.RemainingCalls(); remaining >= 0 {
		return fmt.Sprintf("%d/%d", secret.CurrentCalls, *secret.MaxCalls)
	}
	return fmt.Sprintf("%d/unlimited", secret.CurrentCalls)
}

func formatOptionalTime(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.Format(timeFormat)
}

// maskSensitiveValue keeps a few edge characters of a secret so it can be recognized
func maskSensitiveValue(value string) string {
	switch n := len(value); {
	case n == 0:
		return "(not set)"
	case n <= 2:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:1] + strings.Repeat("*", n-2) + value[n-1:]
	default:
		return value[:3] + strings.Repeat("*", n-6) + value[n-3:]
	}
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return "..."[:maxLength]
	}
	return s[:maxLength-3] + "..."
}

// NoColor is a flag that can be used to disable colored output in the CLI.
var NoColor = &noColorFlag{set: false}

type noColorFlag struct {
	set bool
}

func (f *noColorFlag) Set(value string) error {
	// Boolean flag, the value is ignored
	f.set = true
	return nil
}

func (f *noColorFlag) String() string {
	if f.set {
		return "true"
	}
	return "false"
}

func (f *noColorFlag) Type() string {
	return "bool"
}

// IsSet returns true if the --no-color flag was explicitly set
func (f *noColorFlag) IsSet() bool {
	return f.set
}

// IsBoolFlag tells pflag this is a boolean flag (no argument required)
func (f *noColorFlag) IsBoolFlag() bool {
	return true
}
