package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	farmerrors "yieldcore/core/errors"
	"yieldcore/core/events"
	"yieldcore/storage"
)

// Manager is the owned store behind every farming engine. Writes land in a
// journaled overlay on top of the backing database; the overlay is flushed in
// one batch when the outermost Atomic scope succeeds and rolled back to the
// scope's snapshot when it fails. Events are buffered alongside the journal so
// that reverted calls publish nothing.
//
// Manager is not safe for concurrent use; the farming core is single-writer.
type Manager struct {
	db        storage.Database
	dirty     map[string]overlayEntry
	journal   []journalEntry
	snapshots []snapshot
	pending   []events.Event
	hooks     []func()
	depth     int
	emitter   events.Emitter
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    overlayEntry
	hadPrev bool
}

type snapshot struct {
	journal int
	events  int
	hooks   int
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string]overlayEntry),
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the downstream emitter that receives events once the
// enclosing scope commits.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// OnCommit queues fn to run after the outermost scope commits. Reverted
// scopes drop their hooks. Outside of an Atomic scope fn runs immediately.
func (m *Manager) OnCommit(fn func()) {
	if m == nil || fn == nil {
		return
	}
	if m.depth == 0 {
		fn()
		return
	}
	m.hooks = append(m.hooks, fn)
}

// Emit buffers the event until commit. Outside of an Atomic scope the event
// is published immediately.
func (m *Manager) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	if m.depth == 0 {
		m.emitter.Emit(evt)
		return
	}
	m.pending = append(m.pending, evt)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if entry, ok := m.dirty[string(hashed)]; ok {
		if entry.deleted {
			return nil, nil
		}
		return entry.value, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, farmerrors.Storage("state: read", err)
	}
	return data, nil
}

func (m *Manager) write(hashed []byte, entry overlayEntry) {
	key := string(hashed)
	prev, hadPrev := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, hadPrev: hadPrev})
	m.dirty[key] = entry
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the backing store.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return farmerrors.Storage("state: encode", err)
	}
	m.write(kvKey(key), overlayEntry{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, farmerrors.Storage("state: decode", err)
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(kvKey(key), overlayEntry{deleted: true})
	return nil
}

// Snapshot marks the current journal position and returns its identifier.
func (m *Manager) Snapshot() int {
	m.snapshots = append(m.snapshots, snapshot{journal: len(m.journal), events: len(m.pending), hooks: len(m.hooks)})
	return len(m.snapshots) - 1
}

// RevertToSnapshot undoes every write and buffered event recorded after the
// snapshot was taken. Later snapshots are invalidated.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	snap := m.snapshots[id]
	for i := len(m.journal) - 1; i >= snap.journal; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:snap.journal]
	m.pending = m.pending[:snap.events]
	m.hooks = m.hooks[:snap.hooks]
	m.snapshots = m.snapshots[:id]
}

// Atomic runs fn as an all-or-nothing scope. A failing scope is reverted to
// its entry snapshot. When the outermost scope succeeds the overlay is
// committed, the buffered events are published and commit hooks run; nested scopes only fold
// their writes into the parent.
func (m *Manager) Atomic(fn func() error) error {
	snap := m.Snapshot()
	m.depth++
	ok := false
	defer func() {
		if !ok {
			m.depth--
			m.RevertToSnapshot(snap)
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	ok = true
	m.depth--
	if m.depth > 0 {
		return nil
	}
	return m.Commit()
}

// InScope reports whether an Atomic scope is currently open.
func (m *Manager) InScope() bool { return m.depth > 0 }

// Commit flushes the overlay to the backing database and publishes buffered
// events. On a database failure the overlay is discarded.
func (m *Manager) Commit() error {
	if len(m.dirty) > 0 {
		puts := make(map[string][]byte, len(m.dirty))
		deletes := make(map[string]struct{})
		for key, entry := range m.dirty {
			if entry.deleted {
				deletes[key] = struct{}{}
				continue
			}
			puts[key] = entry.value
		}
		if err := m.db.WriteBatch(puts, deletes); err != nil {
			m.Discard()
			return farmerrors.Storage("state: commit", err)
		}
	}
	published, hooks := m.pending, m.hooks
	m.reset()
	for _, evt := range published {
		m.emitter.Emit(evt)
	}
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Discard drops every uncommitted write and buffered event.
func (m *Manager) Discard() {
	m.reset()
}

func (m *Manager) reset() {
	m.dirty = make(map[string]overlayEntry)
	m.journal = nil
	m.snapshots = nil
	m.pending = nil
	m.hooks = nil
}
