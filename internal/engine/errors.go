package engine

import "errors"

// Sentinel errors forming the taxonomy from spec.md §7. Non-domain
// errors are reported with fmt.Errorf("...: %w", ...) at the call site:
// I/O and embedded-tree library errors wrap the underlying error, and a
// record that fails to parse wraps ErrCorrupt, the same pattern the
// teacher uses for types.ErrCorrupt in segment/reader.go.
var (
	// ErrKeyNotFound is the one domain-level error: remove of a key that
	// is not present. Get of an absent key reports ok=false instead.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorrupt indicates the log contains a record that is not a
	// torn trailing write but genuinely fails to parse, or an index
	// entry points at a record that doesn't match expectations.
	ErrCorrupt = errors.New("corrupt record")

	// ErrEncoding indicates a stored value was not valid text on
	// deserialize.
	ErrEncoding = errors.New("invalid encoding")

	// ErrUnsupportedEngine indicates a requested engine name is neither
	// "kvs" nor "sled".
	ErrUnsupportedEngine = errors.New("unsupported engine")

	// ErrEngineMismatch indicates the directory already holds data
	// persisted by the other backend.
	ErrEngineMismatch = errors.New("engine mismatch against persisted data")

	// ErrClosed indicates an operation was attempted on an engine whose
	// last handle has already been dropped.
	ErrClosed = errors.New("engine closed")
)
