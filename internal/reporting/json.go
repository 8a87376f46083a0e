package reporting

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
)

// Summary is the machine-readable digest of a run. Screenshots are left out
// to keep it small.
type Summary struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Engine  string         `json:"engine"`
	Started time.Time      `json:"started"`
	Counts  map[Status]int `json:"counts"`
	Tests   []SummaryTest  `json:"tests"`
}

type SummaryTest struct {
	Name     string  `json:"name"`
	Outcome  Status  `json:"outcome"`
	Duration float64 `json:"duration_seconds"`
	Entries  []Entry `json:"entries"`
}

// Summarize digests run.
func Summarize(run *Run) Summary {
	s := Summary{
		ID:      run.ID,
		Title:   run.Title,
		Engine:  run.Engine,
		Started: run.Started,
		Counts:  run.Counts(),
		Tests:   make([]SummaryTest, 0, len(run.Tests)),
	}
	for _, t := range run.Tests {
		st := SummaryTest{Name: t.Name, Outcome: t.Outcome(), Duration: t.Duration().Seconds()}
		for _, e := range t.Entries {
			e.Screenshot = ""
			st.Entries = append(st.Entries, e)
		}
		s.Tests = append(s.Tests, st)
	}
	return s
}

type jsonSink struct {
	out *output
}

func (s *jsonSink) Write(_ context.Context, run *Run) error {
	b, err := json.MarshalIndent(Summarize(run), "", "  ")
	if err != nil {
		return fmt.Errorf("serialize json summary: %w", err)
	}
	return s.out.write(append(b, '\n'))
}

func (s *jsonSink) Close() error { return s.out.close() }
