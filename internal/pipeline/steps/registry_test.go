package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/types"
)

func TestGetAgentChain(t *testing.T) {
	tests := []struct {
		taskType types.TaskType
		want     []string
	}{
		{types.TaskTranscription, []string{"VTTA"}},
		{types.TaskCodeExtraction, []string{"VTTA", "CSDAA"}},
		{types.TaskFullAnalysis, []string{"VTTA", "CSDAA", "OFSA"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.taskType), func(t *testing.T) {
			chain, err := GetAgentChain(tt.taskType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, chain)

			again, _ := GetAgentChain(tt.taskType)
			assert.Equal(t, chain, again, "chain must be deterministic")
		})
	}

	_, err := GetAgentChain("translation")
	assert.Error(t, err)
	assert.Panics(t, func() { MustAgentChain("translation") })
}

func TestGetAgentChain_ReturnsCopy(t *testing.T) {
	chain := MustAgentChain(types.TaskFullAnalysis)
	chain[0] = "HACKED"
	assert.Equal(t, "VTTA", MustAgentChain(types.TaskFullAnalysis)[0])

	table := Routes()
	table[types.TaskTranscription] = nil
	assert.Equal(t, []string{"VTTA"}, MustAgentChain(types.TaskTranscription))
}

func TestAgents(t *testing.T) {
	agents := Agents()
	require.Len(t, agents, 3)
	assert.Equal(t, "Video Transcription & Timing Agent", agents[0].FullName)
	assert.Equal(t, "Code Structure & Diff Analysis Agent", agents[1].FullName)
	assert.Equal(t, "Output Formatting & Synthesis Agent", agents[2].FullName)
	for _, a := range agents {
		assert.NotEmpty(t, a.Prompt, "agent %s should carry a prompt", a.Name)
		assert.NotEmpty(t, a.Tools)
	}

	_, ok := GetAgentConfig("NOPE")
	assert.False(t, ok)
}

func TestStages(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 4)
	assert.Equal(t, types.StatusIngest, stages[0].Name)
	assert.Empty(t, stages[0].Dependencies)
	for i := 1; i < len(stages); i++ {
		assert.Equal(t, []string{string(stages[i-1].Name)}, stages[i].Dependencies)
	}
}
