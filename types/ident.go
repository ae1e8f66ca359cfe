package types

// ToolIdent is the canonical identifier for a tool as seen by the model and
// by the gateway's own bookkeeping (trace fields, policy decisions).
type ToolIdent string
