package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink persists a run. Write receives the complete run every time and must
// replace whatever it wrote before.
type Sink interface {
	Write(ctx context.Context, run *Run) error
	Close() error
}

// Supported sink formats.
const (
	FormatHTML  = "html"
	FormatJUnit = "junit"
	FormatJSON  = "json"
)

// NewSink creates a sink for format writing to outputPath. JUnit and JSON
// sinks given an empty path or "stdout" print the final run to stdout when
// closed. The HTML report always needs a file.
func NewSink(format, outputPath string) (Sink, error) {
	out := &output{path: outputPath, stdout: os.Stdout}
	if outputPath == "stdout" {
		out.path = ""
	}

	switch format {
	case FormatHTML:
		if out.path == "" {
			return nil, fmt.Errorf("html report needs an output file")
		}
		return NewHTMLSink(out.path)
	case FormatJUnit:
		return &junitSink{out: out}, nil
	case FormatJSON:
		return &jsonSink{out: out}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// output either rewrites a file atomically on every write or, without a
// path, keeps the latest rendering for the writer until close.
type output struct {
	path   string
	stdout io.Writer
	last   []byte
}

func (o *output) write(b []byte) error {
	if o.path == "" {
		o.last = b
		return nil
	}
	return writeAtomic(o.path, b)
}

func (o *output) close() error {
	if o.path != "" || o.last == nil {
		return nil
	}
	_, err := o.stdout.Write(o.last)
	return err
}

// writeAtomic replaces path with b so a reader never sees a partial report.
func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace report %s: %w", path, err)
	}
	return nil
}
