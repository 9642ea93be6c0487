package planner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"voxpersona/internal/chain"
)

// Execute runs a Plan against input and returns the final text. For
// ModeTwoPhaseMergeJSON, parallel controls whether part_1 and part_2 run
// concurrently (true when at least two credentials are available) or
// sequentially; concatenation order is always A then B regardless of
// completion order.
func Execute(ctx context.Context, plan Plan, input string, caller chain.Caller, parallel bool) (string, error) {
	switch plan.Mode {
	case ModeSingle:
		return chain.Run(ctx, caller, plan.Chain, input)
	case ModeTwoPhaseMergeJSON:
		return executeTwoPhase(ctx, plan, input, caller, parallel)
	default:
		return chain.Run(ctx, caller, plan.Chain, input)
	}
}

func executeTwoPhase(ctx context.Context, plan Plan, input string, caller chain.Caller, parallel bool) (string, error) {
	var outA, outB string

	if parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			out, err := chain.Run(gctx, caller, plan.PartA, input)
			outA = out
			return err
		})
		g.Go(func() error {
			out, err := chain.Run(gctx, caller, plan.PartB, input)
			outB = out
			return err
		})
		if err := g.Wait(); err != nil {
			return "", err
		}
	} else {
		var err error
		outA, err = chain.Run(ctx, caller, plan.PartA, input)
		if err != nil {
			return "", err
		}
		outB, err = chain.Run(ctx, caller, plan.PartB, input)
		if err != nil {
			return "", err
		}
	}

	merged := outA + "\n\n" + outB
	return chain.Run(ctx, caller, plan.Merge, merged)
}
