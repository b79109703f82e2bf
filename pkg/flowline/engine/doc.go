// Package engine builds pipelines from a definition and runs them as a
// unit.
//
// The engine is the composition root: it owns the factories that turn
// component definitions into processors and sources, and the collaborators
// every pipeline shares (logger, notification bus, state store, metrics):
//
//	def, err := config.LoadDefinition("pipelines.yaml")
//	...
//	eng := engine.New(
//	    engine.WithSettings(settings),
//	    engine.WithStateStore(store),
//	)
//	if err := eng.Build(def); err != nil { ... }
//	if err := eng.Initialise(ctx); err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Dispose(context.Background())
//
// Pipelines start concurrently and stop in reverse declaration order.
package engine
