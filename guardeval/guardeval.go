// Package guardeval defines the external guardrail-evaluator contract the
// Guardrail interceptor (interceptor/guard) calls against. Evaluator
// implementations themselves — the actual policy/classifier logic — are out
// of scope per spec Non-goals; this package only fixes the shape a
// conforming evaluator must satisfy.
//
// The contract is grounded on the teacher's policy.Engine.Decide(ctx,
// policy.Input) (policy.Decision, error) shape (features/policy/basic
// implements it), generalized from "which tools may this turn call" to
// "does this request/response pass the configured guardrail", since both
// are the same shape of question: inspect a turn, return an allow/deny
// verdict plus metadata, without the caller needing to know how the
// decision was reached.
package guardeval

import (
	"context"

	"github.com/vllora/gateway/types"
)

// Stage identifies which side of the provider call a guardrail evaluates.
type Stage string

const (
	// StageInput evaluates the outbound UnifiedRequest, before dispatch.
	StageInput Stage = "input"
	// StageOutput evaluates the inbound UnifiedResponse, after dispatch.
	StageOutput Stage = "output"
)

// Action controls how a failing Decision affects the request.
type Action string

const (
	// ActionValidate means a failing Decision (Passed: false) blocks the
	// request with InterceptorBlocked.
	ActionValidate Action = "validate"
	// ActionObserve means a failing Decision is only recorded on the trace;
	// the request proceeds regardless of Passed.
	ActionObserve Action = "observe"
)

// Input is the turn an Evaluator inspects.
type Input struct {
	Stage Stage

	Request *types.UnifiedRequest

	// Response is nil when Stage is StageInput.
	Response *types.UnifiedResponse

	ThreadID string
	RunID    string
}

// Decision is an Evaluator's verdict for one Input.
type Decision struct {
	// Passed reports whether the turn satisfies the guardrail. Its effect
	// on control flow depends on the configured Action: ActionValidate
	// blocks on Passed == false, ActionObserve never blocks.
	Passed bool

	// Action is echoed back from the evaluator's own configuration so the
	// calling interceptor does not need a separate lookup to know how to
	// treat a failing Decision; evaluators that have no opinion may leave
	// this empty, in which case the guard interceptor treats a failing
	// Decision as ActionValidate.
	Action Action

	Reason string
	Labels map[string]string
}

// Evaluator is the external guardrail contract. Implementations are
// expected to be side-effect-free with respect to the request itself (they
// may read but must not mutate Input.Request/Response) and safe for
// concurrent use across simultaneous requests.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (Decision, error)
}
