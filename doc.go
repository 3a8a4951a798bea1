// Package backplane orchestrates interchangeable backend providers
// behind capability-typed facades.
//
// Providers register per capability (database, auth, storage, realtime,
// edgefunction) with an adapter that hides their wire protocol. The
// orchestrator probes them continuously, routes every facade call to
// the capability's single active provider, and migrates data between
// providers with a copy/verify/cutover pipeline that never leaves a
// capability without an active binding.
//
//	cfg, _ := config.Load()
//	orch, err := backplane.New(*cfg, map[string]capability.Adapter{
//	    "pg": pgAdapter,
//	    "my": myAdapter,
//	})
//	if err != nil { ... }
//	if err := orch.Start(ctx); err != nil { ... }
//	defer orch.Shutdown(ctx)
//
//	id, err := orch.Facade().Database().Create(ctx, "users", rec)
package backplane
