package fakeapi

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// DefaultPosts is the number of posts a new store is seeded with.
const DefaultPosts = 100

var (
	ErrNotFound           = errors.New("not found")
	ErrCredentialsMissing = errors.New("email and password are required")
	ErrEmailFormat        = errors.New("email format is invalid")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrEmailExists        = errors.New("email already exists")
	ErrUnknownUser        = errors.New("cannot find user")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrMissingToken       = errors.New("missing authorization header")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// MinPasswordLength is the shortest password /register accepts.
const MinPasswordLength = 4

// Record is a stored resource. Every record has a numeric "id".
type Record map[string]any

func (r Record) ID() int {
	switch id := r["id"].(type) {
	case int:
		return id
	case float64:
		return int(id)
	}
	return 0
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type user struct {
	Record
	password string
}

// Store keeps posts, users and issued tokens in memory.
type Store struct {
	mu     sync.RWMutex
	posts  map[int]Record
	nextID int
	users  map[string]*user
	tokens map[string]string
	nextUI int
}

// NewStore returns a store seeded with n posts numbered from 1.
func NewStore(n int) *Store {
	s := &Store{}
	s.reset(n)
	return s
}

func (s *Store) reset(n int) {
	s.posts = make(map[int]Record, n)
	for i := 1; i <= n; i++ {
		s.posts[i] = Record{
			"id":     i,
			"userId": (i-1)/10 + 1,
			"title":  fmt.Sprintf("post %d", i),
			"body":   fmt.Sprintf("body of post %d", i),
		}
	}
	s.nextID = n + 1
	s.users = make(map[string]*user)
	s.tokens = make(map[string]string)
	s.nextUI = 1
}

// Reset restores the seeded state.
func (s *Store) Reset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(n)
}

// Posts returns every post in id order.
func (s *Store) Posts() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.posts))
	for id := range s.posts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Record, len(ids))
	for i, id := range ids {
		out[i] = s.posts[id].clone()
	}
	return out
}

func (s *Store) Post(id int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.clone(), nil
}

// CreatePost stores rec under the next free id and returns the stored copy.
func (s *Store) CreatePost(rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := rec.clone()
	stored["id"] = s.nextID
	s.posts[s.nextID] = stored
	s.nextID++
	return stored.clone()
}

// ReplacePost replaces the post with rec, keeping its id.
func (s *Store) ReplacePost(id int, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return nil, ErrNotFound
	}
	stored := rec.clone()
	stored["id"] = id
	s.posts[id] = stored
	return stored.clone(), nil
}

func (s *Store) DeletePost(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func credentials(rec Record) (email, password string, err error) {
	email, _ = rec["email"].(string)
	password, _ = rec["password"].(string)
	if email == "" || password == "" {
		return "", "", ErrCredentialsMissing
	}
	return email, password, nil
}

// Register creates a user and returns it without its password, together with
// a fresh access token.
func (s *Store) Register(rec Record) (Record, string, error) {
	email, password, err := credentials(rec)
	if err != nil {
		return nil, "", err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", ErrEmailFormat
	}
	if len(password) < MinPasswordLength {
		return nil, "", ErrPasswordTooShort
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return nil, "", ErrEmailExists
	}

	public := rec.clone()
	delete(public, "password")
	public["id"] = s.nextUI
	s.nextUI++
	s.users[email] = &user{Record: public, password: password}

	return public.clone(), s.issueToken(email), nil
}

// Login checks credentials and returns the user with a fresh access token.
func (s *Store) Login(rec Record) (Record, string, error) {
	email, password, err := credentials(rec)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, "", ErrUnknownUser
	}
	if u.password != password {
		return nil, "", ErrIncorrectPassword
	}
	return u.Record.clone(), s.issueToken(email), nil
}

func (s *Store) issueToken(email string) string {
	token := uuid.NewString()
	s.tokens[token] = email
	return token
}

// Authenticate returns the email that token was issued to.
func (s *Store) Authenticate(token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return email, nil
}

func parseID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	return id, err == nil
}
