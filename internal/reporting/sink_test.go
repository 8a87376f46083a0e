package reporting

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() *Run {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &Run{
		ID:      "run-1",
		Title:   "Storefront E2E",
		Engine:  "chrome",
		Started: start,
		Tests: []*Test{{
			ID:      "t-1",
			Name:    "Storefront: add to cart",
			Started: start,
			Entries: []Entry{
				{Status: StatusInfo, Message: "started", Time: start},
				{Status: StatusPass, Message: "added", Screenshot: "AAAA", Time: start.Add(1500 * time.Millisecond)},
			},
		}},
	}
}

func TestJSONSink_StdoutOnClose(t *testing.T) {
	var buf bytes.Buffer
	s := &jsonSink{out: &output{stdout: &buf}}

	require.NoError(t, s.Write(context.Background(), sampleRun()))
	assert.Zero(t, buf.Len(), "nothing is printed before close")
	require.NoError(t, s.Close())

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, 1, got.Counts[StatusPass])
	require.Len(t, got.Tests, 1)
	assert.Equal(t, StatusPass, got.Tests[0].Outcome)
	assert.InDelta(t, 1.5, got.Tests[0].Duration, 0.001)
	for _, e := range got.Tests[0].Entries {
		assert.Empty(t, e.Screenshot)
	}
}

func TestWriteAtomic_ReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.json")

	require.NoError(t, writeAtomic(path, []byte("first")))
	require.NoError(t, writeAtomic(path, []byte("second")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestClone(t *testing.T) {
	run := sampleRun()
	c := run.clone()
	c.Tests[0].Entries = append(c.Tests[0].Entries, Entry{Status: StatusFail})
	c.Tests[0].Name = "other"

	assert.Len(t, run.Tests[0].Entries, 2)
	assert.Equal(t, "Storefront: add to cart", run.Tests[0].Name)
	assert.False(t, run.Failed())
	assert.True(t, c.Failed())
}
