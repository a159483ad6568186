package grading

import (
	"math"

	"codegrader/internal/judge/model"
)

// Submission statuses.
const (
	StatusPending     = "pending"
	StatusAccepted    = "accepted"
	StatusWrongAnswer = "wrong answer"
)

// CaseVerdict is the per-test-case breakdown of an Outcome.
type CaseVerdict struct {
	Index       int     `json:"index"`
	Passed      bool    `json:"passed"`
	JudgeStatus int     `json:"judge_status"`
	Description string  `json:"description"`
	Time        float64 `json:"time"`
	Memory      int64   `json:"memory"`
}

// Outcome aggregates judge results for one submission.
type Outcome struct {
	TestCasesPassed int           `json:"test_cases_passed"`
	TotalTestCases  int           `json:"total_test_cases"`
	Status          string        `json:"status"`
	TotalRuntime    float64       `json:"total_runtime"`
	AvgMemory       int64         `json:"avg_memory"`
	Cases           []CaseVerdict `json:"cases,omitempty"`
}

// Evaluator compares judge results against expected outputs.
type Evaluator struct {
	normalize func(string) string
}

// NewEvaluator returns an evaluator for the given comparison mode ("lenient" or "strict").
func NewEvaluator(mode string) *Evaluator {
	return &Evaluator{normalize: NormalizerFor(mode)}
}

// Evaluate scores results[i] against expectedOutputs[i]. Callers must pass
// slices of equal length. A case passes only when the judge accepted it
// and the normalized stdout equals the normalized expected output.
func (e *Evaluator) Evaluate(results []model.JudgeResult, expectedOutputs []string) Outcome {
	total := len(results)
	if total == 0 {
		return Outcome{Status: StatusWrongAnswer}
	}

	out := Outcome{TotalTestCases: total, Cases: make([]CaseVerdict, 0, total)}
	var runtime float64
	var memory float64
	for i, r := range results {
		expected := ""
		if i < len(expectedOutputs) {
			expected = expectedOutputs[i]
		}
		passed := r.Status.ID == model.StatusAccepted &&
			e.normalize(r.StdoutText()) == e.normalize(expected)
		if passed {
			out.TestCasesPassed++
		}
		t := r.Time.Float()
		m := r.Memory.Float()
		runtime += t
		memory += m
		out.Cases = append(out.Cases, CaseVerdict{
			Index:       i,
			Passed:      passed,
			JudgeStatus: r.Status.ID,
			Description: r.Status.Description,
			Time:        t,
			Memory:      int64(m),
		})
	}

	out.TotalRuntime = RoundRuntime(runtime)
	out.AvgMemory = int64(math.Round(memory / float64(total)))
	out.Status = StatusFor(out.TestCasesPassed, out.TotalTestCases)
	return out
}

// Evaluate scores results with the lenient comparison.
func Evaluate(results []model.JudgeResult, expectedOutputs []string) Outcome {
	return NewEvaluator(ComparisonLenient).Evaluate(results, expectedOutputs)
}

// StatusFor derives a terminal status from the counts.
func StatusFor(passed, total int) string {
	if total > 0 && passed == total {
		return StatusAccepted
	}
	return StatusWrongAnswer
}

// RoundRuntime rounds seconds to millisecond precision.
func RoundRuntime(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
