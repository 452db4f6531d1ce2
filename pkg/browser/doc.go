// Package browser defines the contracts between the pipeline agent and a
// concrete browser engine.
//
// The package is engine-agnostic. Backends live in sub-packages:
//
//   - playwright: adapters over playwright-go
//   - rod: adapters over go-rod
//   - pool: a Provider that lends browsers out of a bounded pool
//
// # Browser Sources
//
// An agent obtains its browser from a Source, which is one of three variants:
//
//  1. FromProvider: a handle is borrowed per unit of work and released afterwards
//  2. FromBrowser: a caller-owned handle that is already available
//  3. FromPending: a handle that is still being launched
//
// Acquire resolves all three uniformly and returns a release function that is a
// no-op for caller-owned handles.
//
// # Degraded Mode
//
// When a source yields no handle, work still runs against NoPage. Every
// primitive on NoPage fails with ErrNoBrowser, and IsDegraded reports the mode
// so work functions can branch on it explicitly.
//
// # Example Usage
//
//	src := browser.FromProvider(pool)
//	b, release, err := src.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
//	page, err := b.NewPage(ctx)
//	if err != nil {
//	    return err
//	}
//	defer page.Close()
//
//	err = page.Goto(ctx, "https://example.com", browser.WaitUntilLoad)
package browser
