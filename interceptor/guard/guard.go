// Package guard adapts an external guardeval.Evaluator into an
// interceptor.Interceptor: PreRequest evaluates Input, PostRequest
// evaluates Output, per spec §4.3's Guardrail interceptor.
package guard

import (
	"context"

	"github.com/vllora/gateway/guardeval"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/types"
)

// Interceptor is the Guardrail interceptor of spec §4.3: it calls the
// external evaluator contract for its stage (Input on pre, Output on post).
// A failing Decision with Action ActionValidate blocks; with ActionObserve
// it only records.
type Interceptor struct {
	name      string
	evaluator guardeval.Evaluator
}

// New builds a guard Interceptor named name (so multiple guard stages, e.g.
// "guard:pii" and "guard:jailbreak", can coexist in one chain with distinct
// trace entries) calling evaluator.
func New(name string, evaluator guardeval.Evaluator) *Interceptor {
	return &Interceptor{name: name, evaluator: evaluator}
}

func (i *Interceptor) Name() string { return i.name }

func (i *Interceptor) PreRequest(ctx context.Context, rc *interceptor.RequestContext) (interceptor.Result, error) {
	decision, err := i.evaluator.Evaluate(ctx, guardeval.Input{
		Stage:    guardeval.StageInput,
		Request:  rc.Request,
		ThreadID: rc.ThreadID,
		RunID:    rc.RunID,
	})
	if err != nil {
		return interceptor.Result{}, err
	}
	return resultFrom(decision), nil
}

func (i *Interceptor) PostRequest(ctx context.Context, rc *interceptor.RequestContext, resp *types.UnifiedResponse) (interceptor.Result, error) {
	if resp == nil {
		// A downstream interceptor blocked before the provider call ever
		// happened; there is no output to evaluate.
		return interceptor.Result{Verdict: interceptor.Pass}, nil
	}
	decision, err := i.evaluator.Evaluate(ctx, guardeval.Input{
		Stage:    guardeval.StageOutput,
		Request:  rc.Request,
		Response: resp,
		ThreadID: rc.ThreadID,
		RunID:    rc.RunID,
	})
	if err != nil {
		return interceptor.Result{}, err
	}
	return resultFrom(decision), nil
}

// resultFrom maps a guardeval.Decision to an interceptor.Result. A passing
// decision always yields Pass regardless of Action. A failing decision
// yields Block under ActionValidate (the default when Action is left
// unset by the evaluator) and Observe under ActionObserve.
func resultFrom(decision guardeval.Decision) interceptor.Result {
	res := interceptor.Result{Reason: decision.Reason, Payload: decision}
	if decision.Passed {
		res.Verdict = interceptor.Pass
		return res
	}
	if decision.Action == guardeval.ActionObserve {
		res.Verdict = interceptor.Observe
		return res
	}
	res.Verdict = interceptor.Block
	return res
}
