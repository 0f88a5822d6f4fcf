// Package store provides the persistent, concurrency-safe user store
// (spec §4.1). It is a regeneration of the teacher's
// chat-go/internal/store/store.go: the same sync.RWMutex-guarded map of
// records backed by a JSON file, but with a salted password hash instead
// of the teacher's bare sha256, durable writes taken synchronously inside
// every mutator's critical section (spec §4.1 requires this; the teacher
// persists messages asynchronously through a worker pool, which a user
// record's durability contract cannot tolerate), and friends modeled as a
// symmetric adjacency list instead of the teacher's flat message log.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors compared with errors.Is by callers that need to
// translate a store outcome into one of spec.md §4.6's exact reply
// strings.
var (
	ErrUnknownUser    = errors.New("store: unknown user")
	ErrAlreadyExists  = errors.New("store: nickname already registered")
	ErrAlreadyFriends = errors.New("store: users are already friends")
)

// Outcome reports which mutator succeeded: Created from Register, Added
// from AddFriendship.
type Outcome int

const (
	Created Outcome = iota
	Added
)

// User is one registered account's durable record (spec §3 UserRecord).
type User struct {
	Nickname string
	PwdHash  string
	Score    int
	Friends  []string // sorted, unique
}

// diskRecord is the on-disk shape: {nickname: {score, pwdHash, friends[]}}
// (spec §6). Nickname is the map key so it is not repeated in the value.
type diskRecord struct {
	Score   int      `json:"score"`
	PwdHash string   `json:"pwdHash"`
	Friends []string `json:"friends"`
}

// Store is the thread-safe, durable user store.
type Store struct {
	log  *zap.Logger
	path string

	mu    sync.RWMutex
	users map[string]*User
}

// New loads (or creates) a store backed by the JSON file at path.
func New(path string, log *zap.Logger) (*Store, error) {
	s := &Store{log: log, path: path, users: make(map[string]*User)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	var onDisk map[string]diskRecord
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	for nick, rec := range onDisk {
		s.users[nick] = &User{
			Nickname: nick,
			PwdHash:  rec.PwdHash,
			Score:    rec.Score,
			Friends:  append([]string(nil), rec.Friends...),
		}
	}
	return nil
}

// persistLocked serializes the full store image and atomically replaces
// the backing file (write new, fsync, rename — spec §6). Callers must
// hold s.mu (for write) before calling this.
func (s *Store) persistLocked() error {
	onDisk := make(map[string]diskRecord, len(s.users))
	for nick, u := range s.users {
		onDisk[nick] = diskRecord{Score: u.Score, PwdHash: u.PwdHash, Friends: u.Friends}
	}
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// persistLoggedLocked persists and logs-but-swallows a failure, per the
// fire-and-forget durability policy spec §7/§9 documents as an explicit
// open question, resolved in DESIGN.md: the caller's mutation still
// "succeeds" from the client's point of view even if the disk write
// failed, consistent with the teacher's own persistence path already
// treating backpressure/failure as log-and-continue rather than surfaced
// error.
func (s *Store) persistLoggedLocked() {
	if err := s.persistLocked(); err != nil && s.log != nil {
		s.log.Error("store: durable write failed", zap.Error(err))
	}
}

func hashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("store: hash password: %w", err)
	}
	return string(h), nil
}

// Register creates a new user with an empty friend list and zero score.
// Concurrent identical registrations: exactly one observes Created, the
// rest observe ErrAlreadyExists.
func (s *Store) Register(nickname, password string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[nickname]; exists {
		return 0, ErrAlreadyExists
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	s.users[nickname] = &User{Nickname: nickname, PwdHash: hash, Score: 0, Friends: nil}
	s.persistLoggedLocked()
	return Created, nil
}

// Lookup returns a snapshot copy of nickname's record.
func (s *Store) Lookup(nickname string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[nickname]
	if !ok {
		return User{}, false
	}
	return User{
		Nickname: u.Nickname,
		PwdHash:  u.PwdHash,
		Score:    u.Score,
		Friends:  append([]string(nil), u.Friends...),
	}, true
}

// Verify reports whether password matches nickname's stored fingerprint.
func (s *Store) Verify(nickname, password string) bool {
	s.mu.RLock()
	u, ok := s.users[nickname]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PwdHash), []byte(password)) == nil
}

// AddFriendship inserts a symmetric edge between a and b. Returns
// ErrUnknownUser if either is missing, ErrAlreadyFriends if the edge
// already exists. Self-friendship is the caller's responsibility to
// reject (spec §4.1) since "a == b" is a request-validation concern, not
// a storage one.
func (s *Store) AddFriendship(a, b string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[a]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUser, a)
	}
	ub, ok := s.users[b]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUser, b)
	}
	if contains(ua.Friends, b) {
		return 0, ErrAlreadyFriends
	}
	ua.Friends = insertSorted(ua.Friends, b)
	ub.Friends = insertSorted(ub.Friends, a)
	s.persistLoggedLocked()
	return Added, nil
}

// AdjustScore atomically adds delta to nickname's cumulative score.
func (s *Store) AdjustScore(nickname string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[nickname]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, nickname)
	}
	u.Score += delta
	s.persistLoggedLocked()
	return nil
}

// Scoreboard returns nickname and each of its friends, sorted by score
// descending. Ties are broken arbitrarily but stably (spec §4.6/§9 —
// sort.SliceStable keeps the order the slice is built in among equal
// scores: the caller first, then friends in nickname order).
func (s *Store) Scoreboard(nickname string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[nickname]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, nickname)
	}
	out := make([]User, 0, len(u.Friends)+1)
	out = append(out, User{Nickname: u.Nickname, Score: u.Score})
	for _, f := range u.Friends {
		if fu, ok := s.users[f]; ok {
			out = append(out, User{Nickname: fu.Nickname, Score: fu.Score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
