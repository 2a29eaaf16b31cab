// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package swarmtypes

// SourceFormat is the test-runner output format a TestSummary was parsed
// from.
type SourceFormat string

const (
	FormatPytest     SourceFormat = "pytest"
	FormatJUnit      SourceFormat = "junit"
	FormatJest       SourceFormat = "jest"
	FormatPlaywright SourceFormat = "playwright"
)

// TestFailure is one failing or erroring test case.
type TestFailure struct {
	Name            string `json:"name"`
	Message         string `json:"message"`
	ErrorSignature  string `json:"error_signature"`
}

// TestSummary is the uniform shape every supported test-runner output is
// converted into.
type TestSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Skipped  int `json:"skipped"`

	DurationMS       int64         `json:"duration_ms"`
	ErrorSignatures  []string      `json:"error_signatures"`
	CoveragePercent  *float64      `json:"coverage_percent,omitempty"`
	SourceFormat     SourceFormat  `json:"source_format"`
	Failures         []TestFailure `json:"failures"`
	RawOutputPath    string        `json:"raw_output_path,omitempty"`
}

// ProgressDelta compares two iterations' evidence (file changes + test
// summary) for the Elephant Protocol stall detector.
type ProgressDelta struct {
	FilesChanged       bool     `json:"files_changed"`
	IdenticalSignatures bool    `json:"identical_signatures"`
	PreviousSignatures []string `json:"previous_signatures,omitempty"`
	CurrentSignatures  []string `json:"current_signatures,omitempty"`
}
