package reporting

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// junitSink renders the run as JUnit XML for CI test dashboards. Each test is
// a testcase; failing tests carry their first failure message and warnings
// are listed in system-out.
type junitSink struct {
	out *output
}

func (s *junitSink) Write(_ context.Context, run *Run) error {
	b, err := RenderJUnit(run)
	if err != nil {
		return err
	}
	return s.out.write(b)
}

func (s *junitSink) Close() error { return s.out.close() }

// RenderJUnit builds the JUnit document for run.
func RenderJUnit(run *Run) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	counts := run.Counts()
	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", run.Title)

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", run.Title+" ("+run.Engine+")")
	suite.CreateAttr("id", run.ID)
	suite.CreateAttr("tests", strconv.Itoa(len(run.Tests)))
	suite.CreateAttr("failures", strconv.Itoa(counts[StatusFail]))
	suite.CreateAttr("timestamp", run.Started.Format("2006-01-02T15:04:05"))

	for _, t := range run.Tests {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", t.Name)
		tc.CreateAttr("classname", "storefront."+run.Engine)
		tc.CreateAttr("time", fmt.Sprintf("%.3f", t.Duration().Seconds()))

		var log strings.Builder
		failed := false
		for _, e := range t.Entries {
			fmt.Fprintf(&log, "[%s] %s %s\n", e.Time.Format("15:04:05.000"), strings.ToUpper(string(e.Status)), e.Message)
			if e.Status == StatusFail && !failed {
				failed = true
				f := tc.CreateElement("failure")
				f.CreateAttr("message", e.Message)
				f.CreateAttr("type", "StepFailure")
			}
		}
		if log.Len() > 0 {
			tc.CreateElement("system-out").CreateCharData(log.String())
		}
	}

	doc.Indent(2)
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize junit report: %w", err)
	}
	return b, nil
}
