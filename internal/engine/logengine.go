package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kvslab/kvs/internal/command"
)

// compactionThreshold is the design default from spec.md §4.2: the
// stale-record count at which a write triggers compaction.
const compactionThreshold = 4096

// fileHandle wraps the log's open *os.File with a reference count so a
// compaction that opens a replacement file never closes the old one out
// from under a concurrent reader. refs starts at 1, representing the
// implicit reference held by being the current state's file; compaction
// gives that reference up (retire) once it installs a replacement, and
// the file is closed only once the last holder — baseline or a reader's
// acquire/release pair — lets go of it. This mirrors the teacher's
// state.acquire()/release() finalizer idiom (wal.go's mutateStateLocked
// and Close), scaled down to the single resource this engine owns.
type fileHandle struct {
	f    *os.File
	refs int32 // atomic
}

func newFileHandle(f *os.File) *fileHandle { return &fileHandle{f: f, refs: 1} }

func (h *fileHandle) acquire() { atomic.AddInt32(&h.refs, 1) }

func (h *fileHandle) release() {
	if atomic.AddInt32(&h.refs, -1) == 0 {
		h.f.Close()
	}
}

// logEngineState is the engine's in-memory index, stale counter, and the
// file that index's offsets are valid against, all held behind one
// atomic.Value the same way the teacher's WAL holds segment state in
// wal.go: a reader loads index and file together from a single snapshot,
// so an offset can never be interpreted against a file compaction has
// already replaced.
type logEngineState struct {
	index *immutable.SortedMap[string, int64]
	stale uint64
	file  *fileHandle
}

// LogEngine is the log-structured storage engine from spec.md §4.2.
type LogEngine struct {
	dir string

	s       atomic.Value // *logEngineState
	writeMu sync.Mutex
	endOff  int64 // next append offset; only touched under writeMu

	metrics *engineMetrics
	logger  log.Logger
}

// OpenLogEngine opens or creates kvs.db inside dir, replaying it to
// rebuild the index (spec.md §4.2's "Replay"). logger may be nil, in
// which case engine-internal failures (e.g. a failed compaction) are
// discarded rather than logged.
func OpenLogEngine(dir string, reg prometheus.Registerer, logger log.Logger) (*LogEngine, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	path := filepath.Join(dir, logFootprint)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	e := &LogEngine{
		dir:     dir,
		metrics: newEngineMetrics(reg, string(KindLog)),
		logger:  logger,
	}

	idx, endOff, err := replay(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	e.endOff = endOff
	e.storeState(&logEngineState{index: idx, file: newFileHandle(f)})
	return e, nil
}

// Clone returns a cheap handle sharing this engine's state, mirroring
// the original's `impl Clone for KvStore`. In Go this is a no-op since
// *LogEngine is already safe to share across goroutines by pointer.
func (e *LogEngine) Clone() *LogEngine { return e }

func (e *LogEngine) loadState() *logEngineState   { return e.s.Load().(*logEngineState) }
func (e *LogEngine) storeState(s *logEngineState) { e.s.Store(s) }

// replay reconstructs the index by reading records from offset 0,
// stopping cleanly at end-of-file and discarding an unparseable
// trailing record only when it looks like a torn write (spec.md §4.2).
func replay(f *os.File) (*immutable.SortedMap[string, int64], int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log: %w", err)
	}
	r := bufio.NewReader(f)
	idx := &immutable.SortedMap[string, int64]{}
	var offset int64

	for {
		before := offset
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if len(line) == 0 {
					break // clean end of file
				}
				// torn trailing write: discard and stop, per spec.md §4.2.
				break
			}
			return nil, 0, fmt.Errorf("read log: %w", err)
		}
		offset += int64(len(line))

		cmd, derr := command.Decode([]byte(line[:len(line)-1]))
		if derr != nil {
			return nil, 0, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, before, derr)
		}
		switch cmd.Op {
		case command.OpSet:
			idx = idx.Set(cmd.Key, before)
		case command.OpRemove:
			idx = idx.Delete(cmd.Key)
		default:
			return nil, 0, fmt.Errorf("%w: unexpected op %q in log at offset %d", ErrCorrupt, cmd.Op, before)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return nil, 0, fmt.Errorf("seek log end: %w", err)
	}
	return idx, offset, nil
}

// Set implements Engine.
func (e *LogEngine) Set(key, value string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	line, err := command.Encode(command.Set(key, value))
	if err != nil {
		return err
	}
	cur := e.loadState()
	offset := e.endOff
	if _, err := cur.file.f.WriteAt(line, offset); err != nil {
		return fmt.Errorf("append set record: %w", err)
	}
	if err := cur.file.f.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}
	e.endOff += int64(len(line))
	e.metrics.bytesWritten.Add(float64(len(line)))

	_, existed := cur.index.Get(key)
	newStale := cur.stale
	if existed {
		newStale++
	}
	e.storeState(&logEngineState{index: cur.index.Set(key, offset), stale: newStale, file: cur.file})
	e.metrics.sets.Inc()
	e.metrics.staleRecords.Set(float64(newStale))

	if newStale >= compactionThreshold {
		if err := e.compactLocked(); err != nil {
			level.Error(e.logger).Log("msg", "compaction failed", "err", err)
		}
	}
	return nil
}

// Get implements Engine.
func (e *LogEngine) Get(key string) (string, bool, error) {
	e.metrics.gets.Inc()
	// Load index and file together from one snapshot so the offset is
	// always interpreted against the file it was recorded against, even
	// if a concurrent compaction installs a replacement file immediately
	// after this load.
	var cur *logEngineState
	for {
		cur = e.loadState()
		cur.file.acquire()
		// A compaction may have retired this file between the load and
		// the acquire; if it is no longer current, drop it and reload.
		if e.loadState().file == cur.file {
			break
		}
		cur.file.release()
	}
	defer cur.file.release()

	offset, ok := cur.index.Get(key)
	if !ok {
		return "", false, nil
	}

	line, err := readRecordAt(cur.file.f, offset)
	if err != nil {
		return "", false, fmt.Errorf("read record at %d: %w", offset, err)
	}
	cmd, err := command.Decode(line)
	if err != nil {
		return "", false, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, offset, err)
	}
	if cmd.Op != command.OpSet || cmd.Key != key {
		return "", false, fmt.Errorf("%w: index points at non-matching record for key %q", ErrCorrupt, key)
	}
	return cmd.Value, true, nil
}

// Remove implements Engine.
func (e *LogEngine) Remove(key string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.loadState()
	if _, ok := cur.index.Get(key); !ok {
		return ErrKeyNotFound
	}

	line, err := command.Encode(command.Remove(key))
	if err != nil {
		return err
	}
	offset := e.endOff
	if _, err := cur.file.f.WriteAt(line, offset); err != nil {
		return fmt.Errorf("append remove record: %w", err)
	}
	if err := cur.file.f.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}
	e.endOff += int64(len(line))
	e.metrics.bytesWritten.Add(float64(len(line)))

	newStale := cur.stale + 1
	e.storeState(&logEngineState{index: cur.index.Delete(key), stale: newStale, file: cur.file})
	e.metrics.removes.Inc()
	e.metrics.staleRecords.Set(float64(newStale))

	if newStale >= compactionThreshold {
		if err := e.compactLocked(); err != nil {
			level.Error(e.logger).Log("msg", "compaction failed", "err", err)
		}
	}
	return nil
}

// compactLocked rewrites the log to contain exactly one Set per live
// key, per spec.md §4.2. writeMu must already be held.
func (e *LogEngine) compactLocked() error {
	cur := e.loadState()

	var buf bytes.Buffer
	newIdx := &immutable.SortedMap[string, int64]{}
	it := cur.index.Iterator()
	for !it.Done() {
		key, offset, _ := it.Next()
		line, err := readRecordAt(cur.file.f, offset)
		if err != nil {
			return fmt.Errorf("read live record for %q: %w", key, err)
		}
		cmd, err := command.Decode(line)
		if err != nil {
			return fmt.Errorf("%w: compacting %q: %v", ErrCorrupt, key, err)
		}
		newOffset := int64(buf.Len())
		encoded, err := command.Encode(cmd)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		newIdx = newIdx.Set(key, newOffset)
	}

	tmpPath := filepath.Join(e.dir, logFootprint+".compact.tmp")
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create compaction temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write compaction temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync compaction temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close compaction temp file: %w", err)
	}

	finalPath := filepath.Join(e.dir, logFootprint)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename compaction temp file: %w", err)
	}

	// Reopen so the new state's handle reflects the rewritten log. The
	// old handle is retired, not closed directly: any Get that acquired
	// it just before this swap still holds a reference and will close it
	// on release, so a reader never sees its file disappear mid-read.
	newFile, err := os.OpenFile(finalPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("reopen log after compaction: %w", err)
	}
	e.endOff = int64(buf.Len())

	e.storeState(&logEngineState{index: newIdx, stale: 0, file: newFileHandle(newFile)})
	cur.file.release()
	e.metrics.compactions.Inc()
	e.metrics.compactedBytes.Add(float64(buf.Len()))
	e.metrics.staleRecords.Set(0)
	return nil
}

// Close implements Engine.
func (e *LogEngine) Close() error {
	return e.loadState().file.f.Close()
}

// readRecordAt reads one self-delimiting text record starting at
// offset, without disturbing any other reader or writer's position —
// it uses ReadAt exclusively, the same discipline the teacher's segment
// Reader applies via ReadableFile.ReadAt in segment/reader.go.
func readRecordAt(f *os.File, offset int64) ([]byte, error) {
	const chunk = 512
	var acc []byte
	tmp := make([]byte, chunk)
	pos := offset
	for {
		n, err := f.ReadAt(tmp, pos)
		if n > 0 {
			if idx := bytes.IndexByte(tmp[:n], '\n'); idx >= 0 {
				acc = append(acc, tmp[:idx]...)
				return acc, nil
			}
			acc = append(acc, tmp[:n]...)
			pos += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: unterminated record at offset %d", ErrCorrupt, offset)
			}
			return nil, err
		}
	}
}
