package keys

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces idempotency keys: ULIDs give a millisecond time
// component plus 80 random bits, which is ample collision resistance for
// server-side deduplication. Keys are generated once per logical
// submission and reused verbatim across every retry of that submission.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewGenerator returns a Generator seeded from the current time.
func NewGenerator() *Generator {
	seed := time.Now().UnixNano()
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:     time.Now,
	}
}

// Generate returns a fresh idempotency key.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}
