package keys

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestGenerateWellFormed(t *testing.T) {
	g := NewGenerator()
	k := g.Generate()
	if len(k) != ulid.EncodedSize {
		t.Fatalf("key %q has length %d; want %d", k, len(k), ulid.EncodedSize)
	}
	if _, err := ulid.Parse(k); err != nil {
		t.Fatalf("key %q does not parse: %v", k, err)
	}
}

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		k := g.Generate()
		if _, dup := seen[k]; dup {
			t.Fatalf("duplicate key %q at iteration %d", k, i)
		}
		seen[k] = struct{}{}
	}
}

func TestGenerateMonotonicWithinMillisecond(t *testing.T) {
	g := NewGenerator()
	prev := g.Generate()
	for i := 0; i < 1000; i++ {
		k := g.Generate()
		if k <= prev {
			t.Fatalf("key order regressed: %q then %q", prev, k)
		}
		prev = k
	}
}
