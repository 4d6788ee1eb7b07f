package panel

import (
	"context"
	"fmt"
	"strings"
)

// StepStatus is the outcome of one teardown step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepSkip    StepStatus = "skip"
)

// Step is one sequential piece of a teardown.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepResult reports a step. Err is set for StepError only.
type StepResult struct {
	Name   string
	Status StepStatus
	Err    error
}

func (r StepResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", r.Status, r.Name, r.Err)
	}
	return fmt.Sprintf("[%s] %s", r.Status, r.Name)
}

// RunSteps executes steps in order. The first failure marks every later step skipped; nothing
// is retried.
func RunSteps(ctx context.Context, steps []Step) []StepResult {
	out := make([]StepResult, 0, len(steps))
	failed := false
	for _, s := range steps {
		if failed {
			out = append(out, StepResult{Name: s.Name, Status: StepSkip})
			continue
		}
		if err := s.Run(ctx); err != nil {
			failed = true
			out = append(out, StepResult{Name: s.Name, Status: StepError, Err: err})
			continue
		}
		out = append(out, StepResult{Name: s.Name, Status: StepSuccess})
	}
	return out
}

func renderSteps(title string, results []StepResult) string {
	var b strings.Builder
	b.WriteString(title)
	for _, r := range results {
		b.WriteString("\n")
		b.WriteString(r.String())
	}
	return b.String()
}
