// Package chain implements the Chain Executor (C4): it runs an ordered list
// of prompt stages as a pipeline where each stage sees the prior stage's
// output, with no parallelism within a chain.
package chain

import (
	"context"
	"fmt"
)

// Stage is one step of a chain to execute. IsJSON stages are executed
// identically to any other stage; the Executor does not validate output
// JSON.
type Stage struct {
	Text   string
	IsJSON bool
}

// Caller issues a single LLM call for one stage, given the fully composed
// user text for that stage. Implementations own credential acquisition,
// retry, and release; the Executor only sequences calls.
type Caller interface {
	Call(ctx context.Context, stageText string) (string, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, stageText string) (string, error)

func (f CallerFunc) Call(ctx context.Context, stageText string) (string, error) {
	return f(ctx, stageText)
}

// Run executes stages strictly sequentially, feeding each stage's output
// entirely in place of the input text for the next stage. Stage 0 receives
// stage_0_prompt + "\n\n" + input; stage k>0 receives
// stage_k_prompt + "\n\nText:\n" + prior_output. If any stage fails, Run
// aborts and surfaces that error verbatim.
func Run(ctx context.Context, caller Caller, stages []Stage, input string) (string, error) {
	if len(stages) == 0 {
		return "", fmt.Errorf("chain has no stages")
	}

	output := input
	for i, stage := range stages {
		var stageText string
		if i == 0 {
			stageText = stage.Text + "\n\n" + output
		} else {
			stageText = stage.Text + "\n\nText:\n" + output
		}

		result, err := caller.Call(ctx, stageText)
		if err != nil {
			return "", err
		}
		output = result
	}
	return output, nil
}
