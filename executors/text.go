package executors

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/workflow"
)

const (
	UpperCaseID      = "upper_case_executor"
	ReverseTextID    = "reverse_text_executor"
	TextWorkflowName = "text_workflow"
)

// NewUpperCase forwards the upper-cased input.
func NewUpperCase(id string) *workflow.FuncExecutor[string, string] {
	return workflow.NewTransformExecutor(id, func(_ context.Context, text string) (string, error) {
		return strings.ToUpper(text), nil
	})
}

// NewReverseText yields the input reversed rune by rune.
func NewReverseText(id string) *workflow.FuncExecutor[string, string] {
	return workflow.NewOutputExecutor(id, func(_ context.Context, text string) (string, error) {
		return reverse(text), nil
	})
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// NewTextWorkflow builds upper_case -> reverse_text.
func NewTextWorkflow(logger *zap.Logger, opts ...workflow.RunOption) (*workflow.Workflow, error) {
	return workflow.NewWorkflowBuilder(TextWorkflowName).
		WithDescription("upper-cases and reverses a string").
		WithLogger(logger).
		AddExecutor(NewUpperCase(UpperCaseID)).
		AddExecutor(NewReverseText(ReverseTextID)).
		AddEdge(UpperCaseID, ReverseTextID).
		SetStartExecutor(UpperCaseID).
		WithOptions(opts...).
		Build()
}
