package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/types"
)

func TestValidateExecution_ExactChainIsValid(t *testing.T) {
	for taskType, chain := range Routes() {
		v := ValidateExecution(taskType, chain)
		assert.True(t, v.Valid, "task type %s", taskType)
		assert.Equal(t, -1, v.Index)
		assert.NoError(t, v.Err(taskType))
	}
}

func TestValidateExecution_Mismatches(t *testing.T) {
	tests := []struct {
		name      string
		taskType  types.TaskType
		executed  []string
		wantIndex int
		wantExp   string
		wantAct   string
		wantMsg   string
	}{
		{
			name:      "too short",
			taskType:  types.TaskFullAnalysis,
			executed:  []string{"VTTA", "CSDAA"},
			wantIndex: 2, wantExp: "OFSA", wantAct: "",
			wantMsg: "Expected 3 agents, got 2",
		},
		{
			name:      "too long",
			taskType:  types.TaskTranscription,
			executed:  []string{"VTTA", "CSDAA"},
			wantIndex: 1, wantExp: "", wantAct: "CSDAA",
			wantMsg: "Expected 1 agents, got 2",
		},
		{
			name:      "wrong order",
			taskType:  types.TaskCodeExtraction,
			executed:  []string{"CSDAA", "VTTA"},
			wantIndex: 0, wantExp: "VTTA", wantAct: "CSDAA",
			wantMsg: "Agent 0 should be VTTA, got CSDAA",
		},
		{
			name:      "empty",
			taskType:  types.TaskTranscription,
			executed:  nil,
			wantIndex: 0, wantExp: "VTTA", wantAct: "",
			wantMsg: "Expected 1 agents, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateExecution(tt.taskType, tt.executed)
			assert.False(t, v.Valid)
			assert.Equal(t, tt.wantIndex, v.Index)
			assert.Equal(t, tt.wantExp, v.Expected)
			assert.Equal(t, tt.wantAct, v.Actual)
			assert.Equal(t, tt.wantMsg, v.Error)

			var pErr *types.PipelineValidationError
			require.ErrorAs(t, v.Err(tt.taskType), &pErr)
			assert.Equal(t, MustAgentChain(tt.taskType), pErr.Expected)
		})
	}
}

func TestValidateExecution_UnknownTaskType(t *testing.T) {
	v := ValidateExecution("translation", []string{"VTTA"})
	assert.False(t, v.Valid)
	assert.Contains(t, v.Error, "unknown task type")
}

func TestIsPrefixAndNextAgents(t *testing.T) {
	assert.True(t, IsPrefix(types.TaskFullAnalysis, nil))
	assert.True(t, IsPrefix(types.TaskFullAnalysis, []string{"VTTA", "CSDAA"}))
	assert.False(t, IsPrefix(types.TaskFullAnalysis, []string{"CSDAA"}))
	assert.False(t, IsPrefix(types.TaskTranscription, []string{"VTTA", "CSDAA"}))

	assert.Equal(t, []string{"CSDAA", "OFSA"}, NextAgents(types.TaskFullAnalysis, []string{"VTTA"}))
	assert.Empty(t, NextAgents(types.TaskFullAnalysis, []string{"VTTA", "CSDAA", "OFSA"}))
	assert.Nil(t, NextAgents(types.TaskFullAnalysis, []string{"OFSA"}))
}
