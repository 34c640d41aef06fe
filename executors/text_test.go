package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/workflow"
)

func TestTextWorkflow(t *testing.T) {
	wf, err := NewTextWorkflow(zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{input: "hello world", want: "DLROW OLLEH"},
		{input: "", want: ""},
		{input: "añb", want: "BÑA"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res, err := wf.Run(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, workflow.RunCompleted, res.State)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestTextWorkflow_RejectsWrongInput(t *testing.T) {
	wf, err := NewTextWorkflow(zap.NewNop())
	require.NoError(t, err)

	res, err := wf.Run(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, workflow.RunFailed, res.State)
}
