package watch

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Cursor marks the ordering key of the most recent trade already seen.
// The zero value is unset: the next batch seeds it without alerting.
type Cursor struct {
	Key int64
	Set bool
}

// At returns a cursor positioned at key.
func At(key int64) Cursor {
	return Cursor{Key: key, Set: true}
}

func (c Cursor) String() string {
	if !c.Set {
		return "unset"
	}
	return strconv.FormatInt(c.Key, 10)
}

// State is one subscriber's watch configuration plus its dedup cursor.
type State struct {
	Subscriber int64
	Pair       string
	Interval   time.Duration
	MinUSD     decimal.Decimal
	Enabled    bool
	Cursor     Cursor
	// Epoch increments whenever the cursor is reset, so an in-flight tick
	// can tell that its batch belongs to an older configuration.
	Epoch     uint64
	UpdatedAt time.Time
}

// ChangePair switches the watched pair and resets the cursor.
func (s *State) ChangePair(pair string) {
	s.Pair = pair
	s.ResetCursor()
}

// ResetCursor clears the cursor so the next tick suppresses backlog.
func (s *State) ResetCursor() {
	s.Cursor = Cursor{}
	s.Epoch++
}

// Defaults seed lazily created states.
type Defaults struct {
	Pair     string
	Interval time.Duration
	MinUSD   decimal.Decimal
}

type entry struct {
	mu    sync.Mutex
	state State
}

// Store keeps per-subscriber watch state. Reads and writes for one
// subscriber serialise on that subscriber's own lock.
type Store struct {
	defaults Defaults

	mu      sync.RWMutex
	entries map[int64]*entry
}

// NewStore constructs an empty store.
func NewStore(defaults Defaults) *Store {
	return &Store{defaults: defaults, entries: make(map[int64]*entry)}
}

// Get returns a copy of the subscriber's state if it exists.
func (s *Store) Get(subscriber int64) (State, bool) {
	s.mu.RLock()
	e, ok := s.entries[subscriber]
	s.mu.RUnlock()
	if !ok {
		return State{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Ensure returns the subscriber's state, creating it with defaults first.
func (s *Store) Ensure(subscriber int64) State {
	e := s.entry(subscriber)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update applies fn to a copy of the subscriber's state under its lock and
// commits the copy only when fn returns nil. The subscriber is created with
// defaults if needed.
func (s *Store) Update(subscriber int64, fn func(*State) error) (State, error) {
	e := s.entry(subscriber)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state
	if err := fn(&next); err != nil {
		return e.state, err
	}
	next.Subscriber = subscriber
	next.UpdatedAt = time.Now().UTC()
	e.state = next
	return next, nil
}

// Subscribers lists known subscriber ids in ascending order.
func (s *Store) Subscribers() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len reports the number of known subscribers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) entry(subscriber int64) *entry {
	s.mu.RLock()
	e, ok := s.entries[subscriber]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[subscriber]; ok {
		return e
	}
	e = &entry{state: State{
		Subscriber: subscriber,
		Pair:       s.defaults.Pair,
		Interval:   s.defaults.Interval,
		MinUSD:     s.defaults.MinUSD,
		UpdatedAt:  time.Now().UTC(),
	}}
	s.entries[subscriber] = e
	return e
}
