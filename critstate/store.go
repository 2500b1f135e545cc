package critstate

import (
	"crypto/md5"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// NumCopies is the number of duplicate records written to each slot file,
// so a single bad sector can't silently erase a save.
const NumCopies = 4

// CleanupInterval is how many successful writes a slot tolerates before it
// sweeps its own stale files.
const CleanupInterval = 6

const filePrefix = "crit-state"

var slotNames = [2]string{"a", "b"}

// ErrStillDirty is returned by Read when a reload could not clear the dirty
// flag.
var ErrStillDirty = errors.New("critstate: store still dirty after reload")

// ErrChecksumMismatch is returned by Read when the in-memory payload fails
// its checksum even after a reload.
var ErrChecksumMismatch = errors.New("critstate: checksum mismatch after reload")

type slot struct {
	name       string
	currFile   string
	generation int
}

// Store is a process's redundant critical-state record: an in-memory
// payload mirrored across two on-disk slots, each holding several
// generations of checksummed records.
type Store struct {
	mu   sync.Mutex
	dir  string
	name string
	log  eventloop.Logger

	slots   [2]slot
	version uint64
	dirty   bool
	state   [MaxPayloadLen]byte
	sum     [md5Len]byte
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger routes the store's warnings through l instead of discarding
// them.
func WithLogger(l eventloop.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open creates (if needed) dir and returns a Store for the named process,
// loading whatever state already exists there.
func Open(dir, procName string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("critstate: ensure directory %s: %w", dir, err)
	}

	s := &Store{dir: dir, name: procName, log: eventloop.NoOpLogger{}}
	for i, n := range slotNames {
		s.slots[i] = slot{name: n}
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		s.logf(eventloop.LevelWarn, "initial load failed: %v", err)
	}
	for i := range s.slots {
		s.cleanup(&s.slots[i])
	}
	return s, nil
}

func (s *Store) logf(level eventloop.LogLevel, format string, args ...any) {
	if s.log == nil || !s.log.IsEnabled(level) {
		return
	}
	s.log.Log(eventloop.LogEntry{Level: level, Category: "critstate", Message: fmt.Sprintf(format, args...)})
}

// Save increments the in-memory version, durably writes it to every slot,
// and adopts the new payload in memory. A failure on the first slot aborts
// without touching memory state; a failure on a later slot marks the store
// dirty but still adopts the payload, matching the original's "best effort
// redundancy" semantics.
func (s *Store) Save(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > MaxPayloadLen {
		return ErrPayloadTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newVersion := s.version + 1
	rec := newRecord(newVersion, payload)

	for i := range s.slots {
		if err := s.writeSlot(&s.slots[i], rec); err != nil {
			if i == 0 {
				return fmt.Errorf("critstate: save to primary slot: %w", err)
			}
			s.dirty = true
			s.logf(eventloop.LevelWarn, "save to slot %q failed, marking dirty: %v", s.slots[i].name, err)
			continue
		}
	}

	s.version = newVersion
	s.state = rec.payload
	s.sum = s.checksum()
	return nil
}

// Read copies up to len(out) bytes (capped at MaxPayloadLen) of the current
// payload into out, reloading from disk first if the store is dirty or its
// checksum no longer matches, and returns the number of bytes copied.
func (s *Store) Read(out []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		if err := s.loadLocked(); err != nil {
			return 0, fmt.Errorf("critstate: reload dirty store: %w", err)
		}
		if s.dirty {
			return 0, ErrStillDirty
		}
	}

	if s.checksum() != s.sum {
		if err := s.loadLocked(); err != nil {
			return 0, fmt.Errorf("critstate: reload after checksum mismatch: %w", err)
		}
		if s.checksum() != s.sum {
			return 0, ErrChecksumMismatch
		}
	}

	n := len(out)
	if n > MaxPayloadLen {
		n = MaxPayloadLen
	}
	copy(out, s.state[:n])
	return n, nil
}

func (s *Store) checksum() [md5Len]byte {
	return md5.Sum(s.state[:])
}

// Load forces a reload from disk, discarding any dirty in-memory state.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	s.version = 0
	s.state = [MaxPayloadLen]byte{}
	var firstErr error
	for i := range s.slots {
		if err := s.loadSlot(&s.slots[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.sum = s.checksum()
	s.dirty = false
	// Slot files that hold no valid record leave the store dirty, so Read
	// reports the loss instead of serving an all-zero payload.
	if s.version == 0 {
		entries, _ := os.ReadDir(s.dir)
		for _, ent := range entries {
			for _, sl := range s.slots {
				if !ent.IsDir() && strings.HasPrefix(ent.Name(), slotFilePrefix(s.name, sl.name)) {
					s.dirty = true
				}
			}
		}
	}
	return firstErr
}

func (s *Store) loadSlot(sl *slot) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", s.dir, err)
	}

	prefix := slotFilePrefix(s.name, sl.name)
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), prefix) {
			continue
		}
		full := filepath.Join(s.dir, ent.Name())
		adopted, err := s.loadFile(full)
		if err != nil {
			s.logf(eventloop.LevelWarn, "reading %s: %v", full, err)
			continue
		}
		if adopted {
			sl.currFile = full
		}
	}
	return nil
}

// loadFile reads every NumCopies-duplicated record in file and folds any
// valid one with a sequence >= the best seen so far into the in-memory
// state, returning whether this file contributed the currently-adopted
// record.
func (s *Store) loadFile(file string) (bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return false, err
	}
	if len(data)%recordLen != 0 {
		s.logf(eventloop.LevelWarn, "%s: size %d is not a multiple of the record length", file, len(data))
	}

	adopted := false
	for off := 0; off+recordLen <= len(data); off += recordLen {
		rec, ok := unmarshalRecord(data[off : off+recordLen])
		if !ok || !rec.valid() {
			continue
		}
		if rec.seq < s.version {
			continue
		}
		if rec.seq == s.version {
			// Equal to the best we already hold; still counts as this
			// file contributing, per the original's bookkeeping.
			adopted = true
			continue
		}
		s.version = rec.seq
		s.state = rec.payload
		adopted = true
	}
	return adopted, nil
}

func slotFilePrefix(procName, slotName string) string {
	return fmt.Sprintf("%s-%s.%s.", filePrefix, procName, slotName)
}

func (s *Store) writeSlot(sl *slot, rec record) error {
	suffix, err := randomSuffix()
	if err != nil {
		return fmt.Errorf("generate suffix: %w", err)
	}
	target := filepath.Join(s.dir, fmt.Sprintf("%s%s", slotFilePrefix(s.name, sl.name), suffix))

	pf, err := renameio.NewPendingFile(target, renameio.WithTempDir(s.dir))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pf.Cleanup()

	body := rec.marshal()
	for i := 0; i < NumCopies; i++ {
		if _, err := pf.Write(body); err != nil {
			return fmt.Errorf("write copy %d: %w", i, err)
		}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit %s: %w", target, err)
	}

	sl.currFile = target
	sl.generation++
	if sl.generation >= CleanupInterval {
		s.cleanup(sl)
		sl.generation = 0
	}
	return nil
}

// cleanup removes every file in the slot's prefix family other than the
// slot's current file.
func (s *Store) cleanup(sl *slot) {
	if sl.currFile == "" {
		return
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logf(eventloop.LevelWarn, "cleanup: read directory %s: %v", s.dir, err)
		return
	}
	prefix := slotFilePrefix(s.name, sl.name)
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), prefix) {
			continue
		}
		full := filepath.Join(s.dir, ent.Name())
		if full == sl.currFile {
			continue
		}
		if err := os.Remove(full); err != nil {
			s.logf(eventloop.LevelWarn, "cleanup: remove %s: %v", full, err)
		}
	}
}

const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix() (string, error) {
	var raw [6]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	out := make([]byte, 6)
	for i, b := range raw {
		out[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(out), nil
}
