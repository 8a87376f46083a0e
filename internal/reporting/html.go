package reporting

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed report.html.tmpl
var reportTemplate string

var funcs = template.FuncMap{
	// screenshot turns a base64 PNG into an img src. Entries only ever carry
	// screenshots the suite captured itself.
	"screenshot": func(b64 string) template.URL {
		return template.URL("data:image/png;base64," + b64)
	},
	"stamp": func(t time.Time) string { return t.Format("15:04:05.000") },
	"date":  func(t time.Time) string { return t.Format(time.RFC1123) },
	"upper": strings.ToUpper,
}

// HTMLSink renders the run as a single self-contained HTML page.
type HTMLSink struct {
	path string
	tmpl *template.Template
}

// NewHTMLSink parses the report template and targets path.
func NewHTMLSink(path string) (*HTMLSink, error) {
	tmpl, err := template.New("report").Funcs(funcs).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &HTMLSink{path: path, tmpl: tmpl}, nil
}

type htmlView struct {
	*Run
	Counts map[string]int
}

// Render writes the report markup for run into a buffer.
func (s *HTMLSink) Render(run *Run) ([]byte, error) {
	var buf bytes.Buffer
	counts := make(map[string]int)
	for st, n := range run.Counts() {
		counts[string(st)] = n
	}
	if err := s.tmpl.Execute(&buf, htmlView{Run: run, Counts: counts}); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *HTMLSink) Write(_ context.Context, run *Run) error {
	b, err := s.Render(run)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, b)
}

func (s *HTMLSink) Close() error { return nil }
