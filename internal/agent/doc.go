// Package agent turns stored agent configurations into live handles and
// runs them on a bounded worker pool.
//
// # Registry
//
// The Registry maps a type key to a Factory:
//
//	reg := agent.NewRegistry(store, logger)
//	reg.Register("generic", newGeneric)
//
// Resolve re-reads the configuration on every call and builds a new handle,
// so configuration edits take effect on the next message. Resolution errors
// are ErrAgentNotFound and ErrUnknownType; a failing or panicking factory
// yields a *Failure with Op "construct".
//
// # Pool
//
// Pool.Invoke runs Handle.Process on a worker goroutine with a deadline:
//
//	pool := agent.NewPool(8, nil, logger)
//	reply, err := pool.Invoke(ctx, handle, prompt, 60*time.Second)
//
// On timeout the call returns a *Failure wrapping ErrTimeout. The worker is
// left to finish on its own; its slot is released when it does.
package agent
