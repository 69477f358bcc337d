package report

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// JUnit rendering: one testsuite per report, one testcase per check.
// FAIL maps to a <failure> element. WARN and SKIP map to <skipped>,
// except under strict, where they count as failures too.

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

func junitSuite(r *Report) junitTestSuite {
	suite := junitTestSuite{
		Name:  fmt.Sprintf("arp-conformance.%s.%s", r.Service, r.Tier),
		Tests: len(r.Checks),
	}
	for _, chk := range r.Checks {
		tc := junitTestCase{
			Name:      chk.ID,
			ClassName: fmt.Sprintf("%s.%s", r.Service, r.Tier),
			Time:      fmt.Sprintf("%.3f", float64(chk.DurationMS)/1000.0),
		}
		failed := chk.Outcome == OutcomeFail
		if r.Strict && (chk.Outcome == OutcomeWarn || chk.Outcome == OutcomeSkip) {
			failed = true
		}
		switch {
		case failed:
			tc.Failure = &junitFailure{
				Message: chk.Message,
				Body:    strings.Join(chk.Evidence, "\n"),
			}
			suite.Failures++
		case chk.Outcome == OutcomeWarn || chk.Outcome == OutcomeSkip:
			tc.Skipped = &junitSkipped{Message: chk.Message}
			suite.Skipped++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	return suite
}

// RenderJUnit renders one or more reports as a JUnit-style XML document.
func RenderJUnit(reports []*Report) (string, error) {
	doc := junitTestSuites{}
	for _, r := range reports {
		doc.Suites = append(doc.Suites, junitSuite(r))
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal junit: %w", err)
	}
	return xml.Header + string(data) + "\n", nil
}
