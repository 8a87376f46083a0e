package reporting

import (
	"time"
)

// Status is the level of a report entry.
type Status string

const (
	StatusInfo    Status = "info"
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
)

// Entry is one logged line of a test, optionally with a base64 PNG attached.
type Entry struct {
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	Screenshot string    `json:"screenshot,omitempty"`
	Time       time.Time `json:"time"`
}

// Test groups the entries logged for one scenario.
type Test struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Started time.Time `json:"started"`
	Entries []Entry   `json:"entries"`
}

// Outcome folds the entries into a single status. Any failure fails the test,
// otherwise a warning wins over a pass. A test with only info entries reports
// info.
func (t *Test) Outcome() Status {
	out := StatusInfo
	for _, e := range t.Entries {
		switch e.Status {
		case StatusFail:
			return StatusFail
		case StatusWarning:
			out = StatusWarning
		case StatusPass:
			if out == StatusInfo {
				out = StatusPass
			}
		}
	}
	return out
}

// Duration is the time between the test start and its last entry.
func (t *Test) Duration() time.Duration {
	if len(t.Entries) == 0 {
		return 0
	}
	return t.Entries[len(t.Entries)-1].Time.Sub(t.Started)
}

// Run is the whole report: every test logged during one suite execution.
type Run struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Engine  string    `json:"engine"`
	Started time.Time `json:"started"`
	Tests   []*Test   `json:"tests"`
}

// Counts tallies test outcomes.
func (r *Run) Counts() map[Status]int {
	c := make(map[Status]int, 4)
	for _, t := range r.Tests {
		c[t.Outcome()]++
	}
	return c
}

// Failed reports whether any test failed.
func (r *Run) Failed() bool { return r.Counts()[StatusFail] > 0 }

// clone deep-copies r so sinks can render it without holding the reporter lock.
func (r *Run) clone() *Run {
	out := *r
	out.Tests = make([]*Test, len(r.Tests))
	for i, t := range r.Tests {
		tc := *t
		tc.Entries = append([]Entry(nil), t.Entries...)
		out.Tests[i] = &tc
	}
	return &out
}
