// Package handle derives unique, URL-safe shop handles from business names.
package handle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/Muhadev/celm-backend/pkg/slug"
)

const (
	// MaxLength bounds the normalized base. Suffixes may extend past it.
	MaxLength = 30
	// Fallback is used when a name normalizes to nothing.
	Fallback = "shop"

	DefaultMaxAttempts    = 999
	DefaultSuggestions    = 5
	MaxSuggestions        = 20
	randomSuffixMin       = 1000
	randomSuffixMax       = 9999
	suggestionProbeBudget = 50
)

var semanticSuffixes = []string{"-shop", "-store", "-online", "-hq"}

// Availability answers whether a handle is already taken.
type Availability interface {
	ExistsByShopHandle(ctx context.Context, handle string) (bool, error)
}

// Generator resolves handles against an availability source. The source is
// advisory: a unique index must still back the final write.
type Generator struct {
	avail       Availability
	maxAttempts int
	randInt     func(n int) int
}

type Option func(*Generator)

// WithMaxAttempts bounds the sequential numeric suffix search.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRand replaces the random source used by the last-resort suffix.
func WithRand(fn func(n int) int) Option {
	return func(g *Generator) { g.randInt = fn }
}

func NewGenerator(avail Availability, opts ...Option) *Generator {
	g := &Generator{
		avail:       avail,
		maxAttempts: DefaultMaxAttempts,
		randInt:     rand.IntN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalize turns a business name into a base handle: lower-case ASCII
// letters and digits, words joined by single hyphens, at most MaxLength bytes.
func Normalize(name string) string {
	base := slug.Truncate(slug.Generate(name), MaxLength)
	if base == "" {
		return Fallback
	}
	return base
}

// IsAvailable reports whether handle is free. The handle is normalized first.
func (g *Generator) IsAvailable(ctx context.Context, handle string) (bool, error) {
	taken, err := g.avail.ExistsByShopHandle(ctx, Normalize(handle))
	if err != nil {
		return false, fmt.Errorf("check handle availability: %w", err)
	}
	return !taken, nil
}

// ResolveUnique returns base if free, else the first free of base2, base3...
// up to the attempt bound. When every numbered variant is taken it returns
// base plus a random four-digit suffix without checking it.
func (g *Generator) ResolveUnique(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = Fallback
	}

	for n := 1; n <= g.maxAttempts; n++ {
		candidate := base
		if n > 1 {
			candidate = base + strconv.Itoa(n)
		}
		taken, err := g.avail.ExistsByShopHandle(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check handle %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	suffix := randomSuffixMin + g.randInt(randomSuffixMax-randomSuffixMin+1)
	return base + strconv.Itoa(suffix), nil
}

// Suggestions returns up to count distinct available handles for name: the
// base, semantic variants, then numbered variants.
func (g *Generator) Suggestions(ctx context.Context, name string, count int) ([]string, error) {
	if count <= 0 {
		count = DefaultSuggestions
	}
	count = min(count, MaxSuggestions)

	base := Normalize(name)
	candidates := make([]string, 0, 1+len(semanticSuffixes))
	candidates = append(candidates, base)
	for _, s := range semanticSuffixes {
		candidates = append(candidates, base+s)
	}

	seen := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	consider := func(c string) error {
		if _, dup := seen[c]; dup {
			return nil
		}
		seen[c] = struct{}{}
		taken, err := g.avail.ExistsByShopHandle(ctx, c)
		if err != nil {
			return fmt.Errorf("check handle %q: %w", c, err)
		}
		if !taken {
			out = append(out, c)
		}
		return nil
	}

	for _, c := range candidates {
		if len(out) == count {
			return out, nil
		}
		if err := consider(c); err != nil {
			return nil, err
		}
	}
	for n := 2; len(out) < count && n < 2+suggestionProbeBudget; n++ {
		if err := consider(base + strconv.Itoa(n)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
