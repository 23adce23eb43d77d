// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package verify

// Category groups checks.
type Category string

const (
	SchemaCategory     Category = "SCHEMA"
	ConstraintCategory Category = "CONSTRAINT"
	IndexCategory      Category = "INDEX"
	DataCategory       Category = "DATA"
)

// Status of a check, or of a whole result.
type Status string

const (
	Pass Status = "PASS"
	Fail Status = "FAIL"
	Skip Status = "SKIP"
)

// Check is the outcome of one assertion.
type Check struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Details  []string `json:"details,omitempty"`
}

// Result aggregates every check of one verification run.
type Result struct {
	Status  Status   `json:"status"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Checks  []*Check `json:"checks"`
}

func newResult() *Result {
	return &Result{Status: Pass, Checks: []*Check{}}
}

func (r *Result) add(c *Check) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case Pass:
		r.Passed++
	case Fail:
		r.Failed++
		r.Status = Fail
	case Skip:
		r.Skipped++
	}
}

func (r *Result) pass(cat Category, name, msg string) {
	r.add(&Check{Name: name, Category: cat, Status: Pass, Message: msg})
}

func (r *Result) fail(cat Category, name, msg string, details ...string) {
	r.add(&Check{Name: name, Category: cat, Status: Fail, Message: msg, Details: details})
}

func (r *Result) skip(cat Category, name, msg string) {
	r.add(&Check{Name: name, Category: cat, Status: Skip, Message: msg})
}

// ByCategory returns the checks of one category, in run order.
func (r *Result) ByCategory(cat Category) []*Check {
	var checks []*Check
	for _, c := range r.Checks {
		if c.Category == cat {
			checks = append(checks, c)
		}
	}
	return checks
}

// ExitCode is 1 when any check failed.
func (r *Result) ExitCode() int {
	if r.Status == Fail {
		return 1
	}
	return 0
}
