// Package cdpr provides the shared vocabulary of the cable robot engine.
//
// It defines the pieces every solver package agrees on:
//
//   - [MotionPattern]: which rows of the platform wrench a robot controls
//   - [ErrInvalidGeometry], [ErrInfeasible], [ErrConvergence]: the error taxonomy
//   - [GeometryError], [InfeasibleError], [ConvergenceError]: typed errors with context
//   - [ParallelFor]: chunked data-parallel loop over independent cables
//
// # Error handling
//
// All errors returned by the engine unwrap to one of the sentinels, so callers
// can branch with errors.Is:
//
//	res, err := catenary.Solve(ctx, rob, pose, wrench, opts)
//	if errors.Is(err, cdpr.ErrConvergence) {
//	    var ce *cdpr.ConvergenceError
//	    errors.As(err, &ce) // last iterate and residuals
//	}
//
// # Thread Safety
//
// Every query is a pure function of its inputs. Nothing in the engine keeps
// state between calls, so independent queries may run concurrently.
package cdpr
