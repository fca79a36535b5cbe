package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/ternarybob/storyagent/internal/templates"
)

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// wib is used when the tz database is unavailable
var wib = time.FixedZone("WIB", 7*60*60)

// FormatIndonesianDate renders t as "18 Oktober 2026"
func FormatIndonesianDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), indonesianMonths[t.Month()-1], t.Year())
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return wib
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return wib
	}
	return loc
}

// promptData is the input of the analyze-story template
type promptData struct {
	Today           string
	Emiten          string
	KeyStatsContext string
}

// promptBuilder renders the analyze-story template
type promptBuilder struct {
	system   string
	body     *template.Template
	location *time.Location
}

func newPromptBuilder(tmpl *templates.Template, timezone string) (*promptBuilder, error) {
	body, err := template.New(tmpl.Name).Option("missingkey=error").Parse(strings.TrimSpace(tmpl.Prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", tmpl.Name, err)
	}
	return &promptBuilder{
		system:   strings.TrimSpace(tmpl.System),
		body:     body,
		location: loadLocation(timezone),
	}, nil
}

// Build returns the single prompt sent to the model: system text, blank line, user prompt
func (b *promptBuilder) Build(emiten string, keyStats json.RawMessage, now time.Time) (string, error) {
	data := promptData{
		Today:           FormatIndonesianDate(now.In(b.location)),
		Emiten:          emiten,
		KeyStatsContext: keyStatsContext(emiten, keyStats),
	}

	var buf bytes.Buffer
	if b.system != "" {
		buf.WriteString(b.system)
		buf.WriteString("\n\n")
	}
	if err := b.body.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// keyStatsContext embeds the caller's key statistics verbatim, pretty-printed
func keyStatsContext(emiten string, keyStats json.RawMessage) string {
	if len(keyStats) == 0 {
		return ""
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, keyStats, "", "  "); err != nil {
		return ""
	}
	return fmt.Sprintf("\nDATA KEY STATISTICS UNTUK %s:\n%s\n", emiten, pretty.String())
}

// parseKeyStats reads {"keyStats": ...} from a request body.
// Absent, malformed, null or falsy values mean no key statistics.
func parseKeyStats(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var envelope struct {
		KeyStats json.RawMessage `json:"keyStats"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	switch strings.TrimSpace(string(envelope.KeyStats)) {
	case "", "null", "false", "0", `""`:
		return nil
	}
	return envelope.KeyStats
}
