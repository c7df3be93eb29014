package builtin

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Provider generates test data. Implementations must be safe for concurrent
// use.
type Provider interface {
	FirstName() string
	LastName() string
	Email() string
	Password() string
	IntBetween(min, max int) int
	String(length int) string
	UUID() string
}

var firstNames = []string{
	"Ada", "Alan", "Barbara", "Claude", "Donald", "Edsger", "Frances", "Grace",
	"John", "Katherine", "Ken", "Leslie", "Margaret", "Niklaus", "Radia", "Rob",
}

var lastNames = []string{
	"Allen", "Dijkstra", "Hamilton", "Hopper", "Johnson", "Kernighan", "Knuth",
	"Lamport", "Liskov", "Lovelace", "Perlman", "Pike", "Ritchie", "Thompson",
	"Turing", "Wirth",
}

const (
	lowerChars        = "abcdefghijklmnopqrstuvwxyz"
	alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var _ Provider = (*RandomProvider)(nil)

// RandomProvider is the default Provider, backed by math/rand.
type RandomProvider struct {
	mu   sync.Mutex
	rng  *rand.Rand
	seed int64
}

// NewProvider returns a Provider. A zero seed picks a time-based seed; any
// other value yields the same sequence on every run.
func NewProvider(seed int64) *RandomProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomProvider{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the seed in use, so a failing run can be reproduced.
func (p *RandomProvider) Seed() int64 {
	return p.seed
}

func (p *RandomProvider) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

func (p *RandomProvider) pick(values []string) string {
	return values[p.intn(len(values))]
}

func (p *RandomProvider) FirstName() string {
	return p.pick(firstNames)
}

func (p *RandomProvider) LastName() string {
	return p.pick(lastNames)
}

func (p *RandomProvider) Email() string {
	user := strings.ToLower(p.FirstName()) + "." + p.fromCharset(6, lowerChars)
	return fmt.Sprintf("%s@%s.test", user, p.fromCharset(6, lowerChars))
}

// Password returns a 12 character password with at least one lower case
// letter, one upper case letter and one digit.
func (p *RandomProvider) Password() string {
	return p.fromCharset(1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") +
		p.fromCharset(1, lowerChars) +
		p.fromCharset(1, "0123456789") +
		p.fromCharset(9, alphanumericChars)
}

// IntBetween returns an integer in [min, max]. Swapped bounds are tolerated.
func (p *RandomProvider) IntBetween(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + p.intn(max-min+1)
}

// String returns a random string of letters and digits.
func (p *RandomProvider) String(length int) string {
	return p.fromCharset(length, alphanumericChars)
}

func (p *RandomProvider) fromCharset(length int, chars string) string {
	if length <= 0 {
		return ""
	}
	result := make([]byte, length)
	for i := range result {
		result[i] = chars[p.intn(len(chars))]
	}
	return string(result)
}

// UUID returns a version 4 UUID drawn from the provider's source, so seeded
// providers produce stable ids too.
func (p *RandomProvider) UUID() string {
	var b [16]byte
	p.mu.Lock()
	_, _ = p.rng.Read(b[:])
	p.mu.Unlock()
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		return uuid.NewString()
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}
