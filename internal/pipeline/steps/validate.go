package steps

import (
	"fmt"

	"github.com/jonathan/video-refinery/internal/types"
)

// Validation is the outcome of comparing an executed agent sequence with the
// route registered for a task type. Index is -1 when the sequences match.
type Validation struct {
	Valid    bool     `json:"valid"`
	Index    int      `json:"index"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
	Chain    []string `json:"chain"`
	Executed []string `json:"executed"`
	Error    string   `json:"error,omitempty"`
}

// Err converts a failed validation into a *types.PipelineValidationError.
func (v Validation) Err(taskType types.TaskType) error {
	if v.Valid {
		return nil
	}
	return &types.PipelineValidationError{
		TaskType: taskType,
		Index:    v.Index,
		Expected: v.Chain,
		Actual:   v.Executed,
		Message:  v.Error,
	}
}

// ValidateExecution checks that executed equals the chain for taskType in both
// length and order. It is pure and reports the first mismatching position.
func ValidateExecution(taskType types.TaskType, executed []string) Validation {
	v := Validation{Index: -1, Executed: append([]string{}, executed...)}

	chain, err := GetAgentChain(taskType)
	if err != nil {
		v.Index = 0
		v.Error = err.Error()
		return v
	}
	v.Chain = chain

	n := max(len(chain), len(executed))
	for i := 0; i < n; i++ {
		var want, got string
		if i < len(chain) {
			want = chain[i]
		}
		if i < len(executed) {
			got = executed[i]
		}
		if want == got {
			continue
		}
		v.Index = i
		v.Expected = want
		v.Actual = got
		if len(chain) != len(executed) {
			v.Error = fmt.Sprintf("Expected %d agents, got %d", len(chain), len(executed))
		} else {
			v.Error = fmt.Sprintf("Agent %d should be %s, got %s", i, want, got)
		}
		return v
	}

	v.Valid = true
	return v
}

// IsPrefix reports whether executed is a prefix of the chain for taskType.
func IsPrefix(taskType types.TaskType, executed []string) bool {
	chain, err := GetAgentChain(taskType)
	if err != nil || len(executed) > len(chain) {
		return false
	}
	for i, agent := range executed {
		if chain[i] != agent {
			return false
		}
	}
	return true
}

// NextAgents returns the agents of the chain not yet covered by executed.
// It returns nil when executed is not a prefix of the chain.
func NextAgents(taskType types.TaskType, executed []string) []string {
	if !IsPrefix(taskType, executed) {
		return nil
	}
	chain := MustAgentChain(taskType)
	return chain[len(executed):]
}
