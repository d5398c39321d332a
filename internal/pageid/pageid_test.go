package pageid

import (
	"regexp"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// freeChecker reports every candidate as unused.
type freeChecker struct{}

func (freeChecker) PageIDExists(string) (bool, error) { return false, nil }

// takenChecker reports every candidate as already in use.
type takenChecker struct{ calls int }

func (c *takenChecker) PageIDExists(string) (bool, error) {
	c.calls++
	return true, nil
}

// scriptedChecker reports the first taken lookups as collisions, then frees up.
// Denied draws never reach the checker, so calls counts real uniqueness checks.
type scriptedChecker struct {
	taken int
	calls int
}

func (c *scriptedChecker) PageIDExists(string) (bool, error) {
	c.calls++
	return c.calls <= c.taken, nil
}

// failingChecker returns a fixed error on every lookup.
type failingChecker struct{ err error }

func (c failingChecker) PageIDExists(string) (bool, error) { return false, c.err }

// reservingChecker mirrors the page table: PageIDExists consults the set of
// reserved ids and Reserve claims one atomically, failing on duplicates.
type reservingChecker struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newReservingChecker() *reservingChecker {
	return &reservingChecker{ids: make(map[string]bool)}
}

func (c *reservingChecker) PageIDExists(pageID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids[pageID], nil
}

func (c *reservingChecker) Reserve(pageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids[pageID] {
		return false
	}
	c.ids[pageID] = true
	return true
}

var idPattern = regexp.MustCompile(`^[0-9a-z]{6}$`)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	gen := New(freeChecker{}, nil, nil)
	assert.Equal(t, DefaultLength, gen.Length(), "nil settings should fall back to the default length")

	settings := &conf.Settings{}
	settings.PageID.Length = 8
	settings.PageID.MaxAttempts = 3

	gen = New(freeChecker{}, settings, nil)
	assert.Equal(t, 8, gen.Length())

	id, err := gen.Allocate()
	require.NoError(t, err)
	assert.Len(t, id, 8, "configured length should drive the draw")
}

func TestAllocate_ProducesWellFormedIDs(t *testing.T) {
	t.Parallel()

	gen := New(freeChecker{}, nil, nil)
	seen := make(map[string]bool)

	for range 200 {
		id, err := gen.Allocate()
		require.NoError(t, err)
		assert.Regexp(t, idPattern, id, "ids must stay within the restricted alphabet")
		assert.False(t, Denied(id), "allocated id %q should never be denylisted", id)
		assert.False(t, seen[id], "id %q allocated twice", id)
		seen[id] = true
	}
}

func TestAllocate_CoversWholeAlphabet(t *testing.T) {
	t.Parallel()

	gen := New(freeChecker{}, nil, nil)
	counts := make(map[rune]int)

	for range 1000 {
		id, err := gen.Allocate()
		require.NoError(t, err)
		for _, r := range id {
			counts[r]++
		}
	}

	// 6000 draws over 36 characters leave every character present unless
	// the sampling is biased.
	for _, r := range alphabet {
		assert.Positive(t, counts[r], "character %q never drawn", r)
	}
}

func TestAllocate_RetriesOnCollision(t *testing.T) {
	t.Parallel()

	checker := &scriptedChecker{taken: 3}
	gen := New(checker, nil, nil)

	id, err := gen.Allocate()
	require.NoError(t, err)
	assert.Regexp(t, idPattern, id)
	assert.Equal(t, 4, checker.calls, "three collisions should cost exactly three extra lookups")
}

func TestAllocate_SpaceExhausted(t *testing.T) {
	t.Parallel()

	checker := &takenChecker{}
	gen := New(checker, nil, nil)

	id, err := gen.Allocate()
	assert.Empty(t, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpaceExhausted), "exhaustion must surface the sentinel, got: %v", err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPageID))
	assert.LessOrEqual(t, checker.calls, DefaultMaxAttempts)
}

func TestAllocate_HonorsConfiguredAttemptBound(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.PageID.Length = 6
	settings.PageID.MaxAttempts = 3

	checker := &takenChecker{}
	gen := New(checker, settings, nil)

	_, err := gen.Allocate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpaceExhausted))
	assert.LessOrEqual(t, checker.calls, 3)
}

func TestAllocate_CheckerErrorPassesThrough(t *testing.T) {
	t.Parallel()

	dbErr := errors.NewStd("database is locked")
	gen := New(failingChecker{err: dbErr}, nil, nil)

	id, err := gen.Allocate()
	assert.Empty(t, id)
	require.ErrorIs(t, err, dbErr, "checker failures must not be rewritten as exhaustion")
	assert.False(t, errors.Is(err, ErrSpaceExhausted))
}

func TestDenied(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		candidate string
		denied    bool
	}{
		{"abc123", false},
		{"qwerty", false},
		{"zx9v2m", false},
		{"000000", false},
		{"banana", false},
		{"5h1t42", true}, // digit folding catches disguised spellings
		{"cla55y", true}, // substring match, no word boundaries
		{"t1tans", true},
		{"n4z1qq", true},
		{"ASShat", true}, // lowered before matching
	}

	for _, tc := range testCases {
		t.Run(tc.candidate, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.denied, Denied(tc.candidate), "candidate %q", tc.candidate)
		})
	}
}

func TestConcurrentAllocation_NoDuplicateReservations(t *testing.T) {
	t.Parallel()

	const goroutines = 8
	const perGoroutine = 25

	checker := newReservingChecker()
	gen := New(checker, nil, nil)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	errs := make([]error, goroutines)

	for i := range goroutines {
		go func(idx int) {
			defer wg.Done()
			for range perGoroutine {
				// Mirrors the store's insert loop: allocate, then claim,
				// redrawing if another writer reserved the id first.
				for {
					id, err := gen.Allocate()
					if err != nil {
						errs[idx] = err
						return
					}
					if checker.Reserve(id) {
						break
					}
				}
			}
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "goroutine %d failed", i)
	}
	assert.Len(t, checker.ids, goroutines*perGoroutine, "every allocation should land exactly one reservation")
	for id := range checker.ids {
		assert.Regexp(t, idPattern, id)
	}
}

func TestAllocate_RecordsMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	pm, err := metrics.NewPageMetrics(registry)
	require.NoError(t, err)

	// A clean allocation observes one attempt.
	_, err = New(freeChecker{}, nil, pm).Allocate()
	require.NoError(t, err)

	// Two scripted collisions, then success.
	_, err = New(&scriptedChecker{taken: 2}, nil, pm).Allocate()
	require.NoError(t, err)

	// A fully taken space burns the attempt budget.
	_, err = New(&takenChecker{}, nil, pm).Allocate()
	require.Error(t, err)

	attempts := gatherFamily(t, registry, "page_id_generation_attempts")
	require.NotNil(t, attempts.GetMetric()[0].GetHistogram())
	assert.Equal(t, uint64(2), attempts.GetMetric()[0].GetHistogram().GetSampleCount(),
		"only successful allocations observe the attempt histogram")

	collisions := gatherFamily(t, registry, "page_id_collisions_total")
	assert.GreaterOrEqual(t, collisions.GetMetric()[0].GetCounter().GetValue(), float64(3))

	exhaustion := gatherFamily(t, registry, "page_id_exhaustion_total")
	assert.Equal(t, float64(1), exhaustion.GetMetric()[0].GetCounter().GetValue())
}

// gatherFamily returns the named metric family from the registry, failing the
// test when it was never collected.
func gatherFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf
		}
	}
	t.Fatalf("metric family %q not gathered", name)
	return nil
}
