// Package registry provides a thread-safe, insertion-ordered registry.
//
// The engine keeps its pipelines and its processor and source factories in
// registries. Insertion order is preserved so pipelines can be started in
// declaration order and stopped in reverse.
//
//	factories := registry.New[string, ProcessorFactory]()
//	if err := factories.Add("log", newLogProcessor); err != nil {
//	    return err // registry.ErrDuplicate
//	}
//	f, ok := factories.Get("log")
//
// Keys and Values return snapshots, and All iterates over one, so the
// registry may be modified while iterating.
package registry
