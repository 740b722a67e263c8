package mport

import "context"

// Callbacks is the set of sinks the engine consumes from its caller
// (§4.10). A driver rendering to a terminal supplies all five; a
// non-interactive caller may treat Confirm as auto-yes when
// ASSUME_ALWAYS_YES or MAGUS is set in the environment (§6).
type Callbacks interface {
	// Message delivers a single human-readable diagnostic line.
	Message(format string, args ...any)
	// ProgressInit announces the start of a bounded unit of work.
	ProgressInit(title string)
	// ProgressStep reports progress against the total set by ProgressInit.
	ProgressStep(done, total int, detail string)
	// ProgressFree signals the current unit of work is over.
	ProgressFree()
	// Confirm asks a yes/no question, returning def if the caller has
	// no way to ask (e.g. non-interactive with no auto-confirm).
	Confirm(prompt, yesLabel, noLabel string, def bool) bool
}

// NopCallbacks discards every callback. Useful as a default for
// batch callers (autoremove, scripted upgrades) that don't want to wire
// up a terminal.
type NopCallbacks struct{}

func (NopCallbacks) Message(string, ...any)              {}
func (NopCallbacks) ProgressInit(string)                 {}
func (NopCallbacks) ProgressStep(int, int, string)       {}
func (NopCallbacks) ProgressFree()                       {}
func (NopCallbacks) Confirm(_, _, _ string, def bool) bool { return def }

// callbacksKey is an unexported context key so engines can thread a
// Callbacks value through calls that already take a context.Context
// without widening every function signature.
type callbacksKey struct{}

// WithCallbacks returns a context carrying cb, retrievable with
// CallbacksFrom.
func WithCallbacks(ctx context.Context, cb Callbacks) context.Context {
	return context.WithValue(ctx, callbacksKey{}, cb)
}

// CallbacksFrom returns the Callbacks stored in ctx, or NopCallbacks{}
// if none was set.
func CallbacksFrom(ctx context.Context) Callbacks {
	if cb, ok := ctx.Value(callbacksKey{}).(Callbacks); ok {
		return cb
	}
	return NopCallbacks{}
}
