// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package testparse

import (
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Parse dispatches to the parser matching format and returns a uniform
// TestSummary. Unsupported formats are a caller error, not a fail-soft
// path, since the caller chose the format explicitly.
func Parse(format swarmtypes.SourceFormat, raw []byte) (*swarmtypes.TestSummary, error) {
	switch format {
	case swarmtypes.FormatPytest:
		return parsePytestJSON(raw)
	case swarmtypes.FormatJUnit:
		return parseJUnitXML(raw)
	case swarmtypes.FormatJest:
		return parseJestJSON(raw)
	case swarmtypes.FormatPlaywright:
		return parsePlaywrightJSON(raw)
	default:
		return nil, fmt.Errorf("testparse: unsupported source format %q", format)
	}
}

func finalize(s *swarmtypes.TestSummary) *swarmtypes.TestSummary {
	s.ErrorSignatures = make([]string, 0, len(s.Failures))
	for i := range s.Failures {
		sig := ErrorSignature(s.Failures[i].Name, s.Failures[i].Message)
		s.Failures[i].ErrorSignature = sig
		s.ErrorSignatures = append(s.ErrorSignatures, sig)
	}
	return s
}

// --- pytest (pytest-json-report shape) ---

type pytestReport struct {
	Summary struct {
		Total   int `json:"total"`
		Passed  int `json:"passed"`
		Failed  int `json:"failed"`
		Error   int `json:"error"`
		Skipped int `json:"skipped"`
	} `json:"summary"`
	Duration float64 `json:"duration"`
	Tests    []struct {
		Nodeid  string `json:"nodeid"`
		Outcome string `json:"outcome"`
		Call    struct {
			Longrepr string `json:"longrepr"`
		} `json:"call"`
	} `json:"tests"`
}

func parsePytestJSON(raw []byte) (*swarmtypes.TestSummary, error) {
	var report pytestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("testparse: parse pytest report: %w", err)
	}

	summary := &swarmtypes.TestSummary{
		Total:        report.Summary.Total,
		Passed:       report.Summary.Passed,
		Failed:       report.Summary.Failed,
		Errors:       report.Summary.Error,
		Skipped:      report.Summary.Skipped,
		DurationMS:   int64(report.Duration * 1000),
		SourceFormat: swarmtypes.FormatPytest,
	}
	for _, t := range report.Tests {
		if t.Outcome == "failed" || t.Outcome == "error" {
			summary.Failures = append(summary.Failures, swarmtypes.TestFailure{
				Name:    t.Nodeid,
				Message: t.Call.Longrepr,
			})
		}
	}
	return finalize(summary), nil
}

// --- junit (standard surefire/junit XML) ---

type junitTestsuites struct {
	Suites []junitTestsuite `xml:"testsuite"`
	// some tools emit a single <testsuite> root instead of <testsuites>
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestcase `xml:"testcase"`
}

type junitTestsuite struct {
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Name    string `xml:"name,attr"`
	Failure *struct {
		Message string `xml:"message,attr"`
		Text    string `xml:",chardata"`
	} `xml:"failure"`
	Error *struct {
		Message string `xml:"message,attr"`
		Text    string `xml:",chardata"`
	} `xml:"error"`
}

func parseJUnitXML(raw []byte) (*swarmtypes.TestSummary, error) {
	var root junitTestsuites
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("testparse: parse junit xml: %w", err)
	}

	summary := &swarmtypes.TestSummary{SourceFormat: swarmtypes.FormatJUnit}
	suites := root.Suites
	if len(suites) == 0 {
		suites = []junitTestsuite{{
			Tests: root.Tests, Failures: root.Failures, Errors: root.Errors,
			Skipped: root.Skipped, Time: root.Time, Cases: root.Cases,
		}}
	}

	for _, suite := range suites {
		summary.Total += suite.Tests
		summary.Failed += suite.Failures
		summary.Errors += suite.Errors
		summary.Skipped += suite.Skipped
		summary.DurationMS += int64(suite.Time * 1000)

		for _, c := range suite.Cases {
			switch {
			case c.Failure != nil:
				summary.Failures = append(summary.Failures, swarmtypes.TestFailure{
					Name: c.Name, Message: firstNonEmpty(c.Failure.Message, c.Failure.Text),
				})
			case c.Error != nil:
				summary.Failures = append(summary.Failures, swarmtypes.TestFailure{
					Name: c.Name, Message: firstNonEmpty(c.Error.Message, c.Error.Text),
				})
			}
		}
	}
	summary.Passed = summary.Total - summary.Failed - summary.Errors - summary.Skipped
	if summary.Passed < 0 {
		summary.Passed = 0
	}
	return finalize(summary), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// --- jest (--json output) ---

type jestReport struct {
	NumTotalTests  int     `json:"numTotalTests"`
	NumPassedTests int     `json:"numPassedTests"`
	NumFailedTests int     `json:"numFailedTests"`
	NumPendingTests int    `json:"numPendingTests"`
	TestResults    []struct {
		AssertionResults []struct {
			FullName        string   `json:"fullName"`
			Status          string   `json:"status"`
			FailureMessages []string `json:"failureMessages"`
		} `json:"assertionResults"`
	} `json:"testResults"`
}

func parseJestJSON(raw []byte) (*swarmtypes.TestSummary, error) {
	var report jestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("testparse: parse jest report: %w", err)
	}

	summary := &swarmtypes.TestSummary{
		Total:        report.NumTotalTests,
		Passed:       report.NumPassedTests,
		Failed:       report.NumFailedTests,
		Skipped:      report.NumPendingTests,
		SourceFormat: swarmtypes.FormatJest,
	}
	for _, result := range report.TestResults {
		for _, a := range result.AssertionResults {
			if a.Status != "failed" {
				continue
			}
			message := ""
			if len(a.FailureMessages) > 0 {
				message = a.FailureMessages[0]
			}
			summary.Failures = append(summary.Failures, swarmtypes.TestFailure{
				Name: a.FullName, Message: message,
			})
		}
	}
	return finalize(summary), nil
}

// --- playwright (--reporter=json output) ---

type playwrightReport struct {
	Stats struct {
		Expected int     `json:"expected"`
		Unexpected int   `json:"unexpected"`
		Skipped  int     `json:"skipped"`
		Duration float64 `json:"duration"`
	} `json:"stats"`
	Suites []playwrightSuite `json:"suites"`
}

type playwrightSuite struct {
	Title    string            `json:"title"`
	Specs    []playwrightSpec  `json:"specs"`
	Suites   []playwrightSuite `json:"suites"`
}

type playwrightSpec struct {
	Title string `json:"title"`
	Tests []struct {
		Results []struct {
			Status string `json:"status"`
			Error  struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"results"`
	} `json:"tests"`
}

func parsePlaywrightJSON(raw []byte) (*swarmtypes.TestSummary, error) {
	var report playwrightReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("testparse: parse playwright report: %w", err)
	}

	summary := &swarmtypes.TestSummary{
		Passed:       report.Stats.Expected,
		Failed:       report.Stats.Unexpected,
		Skipped:      report.Stats.Skipped,
		DurationMS:   int64(report.Stats.Duration),
		SourceFormat: swarmtypes.FormatPlaywright,
	}
	summary.Total = summary.Passed + summary.Failed + summary.Skipped

	var walk func(suites []playwrightSuite)
	walk = func(suites []playwrightSuite) {
		for _, suite := range suites {
			for _, spec := range suite.Specs {
				for _, t := range spec.Tests {
					for _, r := range t.Results {
						if r.Status != "failed" && r.Status != "timedOut" {
							continue
						}
						summary.Failures = append(summary.Failures, swarmtypes.TestFailure{
							Name: spec.Title, Message: r.Error.Message,
						})
					}
				}
			}
			walk(suite.Suites)
		}
	}
	walk(report.Suites)

	return finalize(summary), nil
}
