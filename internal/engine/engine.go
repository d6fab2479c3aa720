// Package engine implements the two pluggable storage backends
// described in spec.md §4.2-4.3: a log-structured engine with a
// replayed in-memory index, and an adapter over go.etcd.io/bbolt
// standing in for the original's "external ordered-map library".
package engine

import (
	"fmt"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the capability set {set, get, remove} from spec.md §9,
// implemented by both backends so the server can be generic over
// whichever was selected at construction time.
type Engine interface {
	// Set associates key with value, appending a durable record.
	Set(key, value string) error
	// Get returns the value for key, or ok=false if the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Remove disassociates key. Returns ErrKeyNotFound if key is absent.
	Remove(key string) error
	// Close releases the engine's file handles.
	Close() error
}

// Kind names a selectable storage engine.
type Kind string

const (
	KindLog  Kind = "kvs"
	KindBolt Kind = "sled"
)

// ParseKind validates a user-supplied engine name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLog:
		return KindLog, nil
	case KindBolt:
		return KindBolt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, s)
	}
}

// logFootprint and boltFootprint are the characteristic file names
// spec.md §6 uses to detect which backend already owns a directory.
const (
	logFootprint  = "kvs.db"
	boltFootprint = "db"
)

// ExistsAt reports whether this engine kind's footprint file is
// present in dir.
func (k Kind) ExistsAt(dir string) bool {
	switch k {
	case KindLog:
		return fileExists(filepath.Join(dir, logFootprint))
	case KindBolt:
		return fileExists(filepath.Join(dir, boltFootprint))
	default:
		return false
	}
}

// SelectEngine resolves the engine to use for dir given the
// user-requested name (empty meaning "not specified"), implementing
// spec.md §6's CLI default/mismatch rules: default to "kvs" on a fresh
// directory, otherwise whatever is already persisted; reject a
// requested engine that contradicts persisted data.
func SelectEngine(dir string, requested string) (Kind, error) {
	logPresent := KindLog.ExistsAt(dir)
	boltPresent := KindBolt.ExistsAt(dir)

	var persisted Kind
	switch {
	case logPresent && boltPresent:
		return "", fmt.Errorf("%w: both kvs and sled data present in %s", ErrEngineMismatch, dir)
	case logPresent:
		persisted = KindLog
	case boltPresent:
		persisted = KindBolt
	}

	if requested == "" {
		if persisted != "" {
			return persisted, nil
		}
		return KindLog, nil
	}

	want, err := ParseKind(requested)
	if err != nil {
		return "", err
	}
	if persisted != "" && persisted != want {
		return "", fmt.Errorf("%w: requested %s but %s is persisted in %s", ErrEngineMismatch, want, persisted, dir)
	}
	return want, nil
}

// Open opens or creates the given engine kind in dir, wiring up
// metrics against reg (which may be nil, in which case a fresh private
// registry is used — matching the teacher's newWALMetrics(reg) call
// convention in metrics.go) and logging against logger (which may also
// be nil).
func Open(kind Kind, dir string, reg prometheus.Registerer, logger log.Logger) (Engine, error) {
	switch kind {
	case KindLog:
		return OpenLogEngine(dir, reg, logger)
	case KindBolt:
		return OpenBoltEngine(dir, reg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, kind)
	}
}
