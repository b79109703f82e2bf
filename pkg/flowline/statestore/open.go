package statestore

import "strings"

// Open returns the store named by spec: "" for none (nil), "memory" for a
// MemoryStore, and anything else as a SQLite database path.
func Open(spec string) (Store, error) {
	switch strings.TrimSpace(spec) {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		s, err := NewSQLiteStore(spec)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
