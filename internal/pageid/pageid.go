// Package pageid allocates the short identifiers under which detection
// results pages are published.
//
// Identifiers are fixed-length strings over a 36-character alphabet (digits
// and lowercase letters) drawn from crypto/rand. At the default length of 6
// the space holds 36^6, roughly 2.2 billion identifiers, so by the birthday
// bound the expected number of collisions stays negligible until well past a
// million stored pages. The bounded retry in Allocate is a correctness guard,
// not a hot path.
package pageid

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

const (
	// alphabet is the identifier character set. Lowercase only, so ids
	// survive case-insensitive transports unchanged.
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// maxUnbiased is the largest multiple of len(alphabet) below 256.
	// Random bytes at or above it are rejected so the modulo draw stays
	// uniform across the alphabet.
	maxUnbiased = 252

	// DefaultLength is the identifier length when the configuration leaves
	// it unset.
	DefaultLength = 6

	// DefaultMaxAttempts bounds how many candidates Allocate draws before
	// giving up with ErrSpaceExhausted.
	DefaultMaxAttempts = 10
)

// ErrSpaceExhausted reports that no unused identifier was found within the
// attempt bound. Seeing it in practice means the id space is badly
// oversubscribed for the configured length, or the uniqueness checker is
// failing open.
var ErrSpaceExhausted = errors.NewStd("page id space exhausted")

// Checker reports whether a candidate identifier is already in use. The
// datastore's PageIDExists satisfies it.
type Checker interface {
	PageIDExists(pageID string) (bool, error)
}

// Generator draws candidate page identifiers and pre-checks them against a
// Checker. The pre-check keeps routine collisions out of the insert path;
// the unique constraint on the page table remains the authoritative guard,
// and the store redraws through Allocate when that constraint fires.
type Generator struct {
	checker     Checker
	length      int
	maxAttempts int
	metrics     *metrics.PageMetrics
}

// New creates a Generator with the length and attempt bound from settings,
// falling back to package defaults for unset values. pageMetrics may be nil.
func New(checker Checker, settings *conf.Settings, pageMetrics *metrics.PageMetrics) *Generator {
	length := DefaultLength
	maxAttempts := DefaultMaxAttempts
	if settings != nil {
		if settings.PageID.Length > 0 {
			length = settings.PageID.Length
		}
		if settings.PageID.MaxAttempts > 0 {
			maxAttempts = settings.PageID.MaxAttempts
		}
	}

	return &Generator{
		checker:     checker,
		length:      length,
		maxAttempts: maxAttempts,
		metrics:     pageMetrics,
	}
}

// Allocate returns an identifier that passed the denylist and was unused at
// check time. It fails with a wrapped ErrSpaceExhausted once the attempt
// bound is spent; checker errors pass through unchanged.
func (g *Generator) Allocate() (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate, err := g.draw()
		if err != nil {
			return "", errors.New(err).
				Category(errors.CategoryPageID).
				Context("operation", "draw_page_id").
				Build()
		}

		// A denylisted draw consumes an attempt the same way a collision
		// does, keeping the loop bounded.
		if Denied(candidate) {
			continue
		}

		exists, err := g.checker.PageIDExists(candidate)
		if err != nil {
			return "", err
		}
		if exists {
			if g.metrics != nil {
				g.metrics.IncrementIDCollisions()
			}
			continue
		}

		if g.metrics != nil {
			g.metrics.ObserveIDGenerationAttempts(attempt)
		}
		return candidate, nil
	}

	if g.metrics != nil {
		g.metrics.IncrementIDExhaustion()
	}
	return "", errors.New(fmt.Errorf("no unused page id in %d attempts: %w", g.maxAttempts, ErrSpaceExhausted)).
		Category(errors.CategoryPageID).
		Priority(errors.PriorityCritical).
		Context("length", g.length).
		Context("max_attempts", g.maxAttempts).
		Build()
}

// Length returns the identifier length this generator produces.
func (g *Generator) Length() int {
	return g.length
}

// draw produces one candidate of the configured length. Bytes from
// crypto/rand are rejection-sampled against maxUnbiased so every alphabet
// character is equally likely.
func (g *Generator) draw() (string, error) {
	id := make([]byte, 0, g.length)
	buf := make([]byte, g.length)

	for len(id) < g.length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxUnbiased {
				continue
			}
			id = append(id, alphabet[int(b)%len(alphabet)])
			if len(id) == g.length {
				break
			}
		}
	}

	return string(id), nil
}

// leetFold maps digit lookalikes onto the letters they imitate so the
// denylist also catches digit-substituted spellings like "5h1t".
var leetFold = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
)

// denylist holds substrings that must never appear in a published
// identifier. Matched after lowering and digit folding.
var denylist = []string{
	"anal", "anus", "ass", "cock", "coon", "cum", "cunt",
	"dick", "fag", "fuc", "fuk", "kike", "kkk", "nazi",
	"nig", "piss", "porn", "rape", "sex", "shit", "slut",
	"tit", "twat", "wank",
}

// Denied reports whether the candidate contains a denylisted substring.
// Identifiers from draw are already lowercase; arbitrary input is lowered
// first so the check can also vet operator-supplied ids.
func Denied(candidate string) bool {
	folded := leetFold.Replace(strings.ToLower(candidate))
	for _, word := range denylist {
		if strings.Contains(folded, word) {
			return true
		}
	}
	return false
}
