// Package validate holds the rule checks run over descriptions, placements
// and generated scripts. Violations are data, never errors.
package validate

import "strings"

// #region verdict

// Verdict is the outcome of one or more rule checks.
type Verdict struct {
	Violated bool     `json:"violated"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Pass is the empty verdict.
func Pass() Verdict { return Verdict{} }

// Fail builds a violated verdict with one reason.
func Fail(reason string) Verdict {
	return Verdict{Violated: true, Reasons: []string{reason}}
}

// Merge concatenates verdicts in order. Every reason is kept.
func Merge(vs ...Verdict) Verdict {
	var out Verdict
	for _, v := range vs {
		if v.Violated {
			out.Violated = true
			out.Reasons = append(out.Reasons, v.Reasons...)
		}
	}
	return out
}

// Feedback joins the reasons one per line.
func (v Verdict) Feedback() string {
	return strings.Join(v.Reasons, "\n")
}

// #endregion verdict

// #region rule

// Rule is one named local check.
type Rule struct {
	Name  string
	Check func(text string) Verdict
}

// Run applies every rule and merges all verdicts. No rule short-circuits
// another.
func Run(rules []Rule, text string) Verdict {
	vs := make([]Verdict, len(rules))
	for i, r := range rules {
		vs[i] = r.Check(text)
	}
	return Merge(vs...)
}

// #endregion rule
