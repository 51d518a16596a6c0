package storedb

// Namespace wraps a concrete DB type with a phantom type parameter T so
// that two otherwise-identical DB configurations can register distinct
// entries in the default-storage registry (§6.3, "a wrapped-DB type
// constructor lets callers create disjoint default-storage namespaces over
// the same concrete DB type"). This generalizes the original
// implementation's WrappedDB; the canonical use is test isolation: each test
// wraps a shared MemDB-backed database under its own phantom tag so that
// default-storage lookups do not collide across tests running in the same
// process.
//
// Namespace itself delegates every DB method unchanged; the phantom type
// parameter exists purely at the Go type-system level; no namespace
// prefixing of keys takes place (each Namespace is expected to wrap an
// independently constructed DB instance when true isolation is required).
type Namespace[T any] struct {
	DB
}

// Wrap tags db with the phantom type T.
func Wrap[T any](db DB) Namespace[T] {
	return Namespace[T]{DB: db}
}
