package dedup

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = "A Kuka Robot KR125 is placed at [0, 0, 0]. A Welding Table is 2 meters in front of the robot. " +
	"Two cabinets stand 3 meters to the left of the table, and a conveyor runs behind the robot."

func TestTokens(t *testing.T) {
	got := Tokens("A robot, at [1000, -200, 0]。\nNext（line）!")
	assert.Equal(t, []string{"A", "robot", "at", "1000", "200", "0Nextline"}, got)
}

func TestExactDuplicateRejected(t *testing.T) {
	idx := NewIndex(DefaultThreshold, DefaultNumPerm)
	ok, err := idx.Insert(1, seed, true)
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, idx.CanInsert(seed))
	ok, err = idx.Insert(2, seed, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, idx.Len())
}

func TestExtensionAccepted(t *testing.T) {
	idx := NewIndex(DefaultThreshold, DefaultNumPerm)
	_, err := idx.Insert(1, seed, true)
	require.NoError(t, err)

	ext := seed + " A Guarding surrounds all objects."
	assert.True(t, idx.CanInsert(ext))
	ok, err := idx.Insert(2, ext, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimilarNonExtensionRejected(t *testing.T) {
	idx := NewIndex(DefaultThreshold, DefaultNumPerm)
	_, err := idx.Insert(1, seed, true)
	require.NoError(t, err)

	// Same token set, different text.
	punct := strings.ReplaceAll(seed, ".", "!")
	assert.False(t, idx.CanInsert(punct))

	sentences := strings.Split(seed, ". ")
	reordered := strings.Join([]string{sentences[1], sentences[0], sentences[2]}, ". ")
	assert.False(t, idx.CanInsert(reordered))
}

func TestUnrelatedAccepted(t *testing.T) {
	idx := NewIndex(DefaultThreshold, DefaultNumPerm)
	_, err := idx.Insert(1, seed, true)
	require.NoError(t, err)
	assert.True(t, idx.CanInsert("Three turntables form a triangle with sides of 4 meters around a single ValveStand."))
}

func TestUncheckedInsertAndDuplicateID(t *testing.T) {
	idx := NewIndex(0, 0)
	ok, err := idx.Insert(1, seed, false)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = idx.Insert(2, seed, false)
	require.NoError(t, err)
	assert.True(t, ok, "unchecked insert must store duplicates")

	_, err = idx.Insert(2, "other", false)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestClosestPrefersHigherSimilarity(t *testing.T) {
	idx := NewIndex(DefaultThreshold, DefaultNumPerm)
	_, _ = idx.Insert(5, seed, false)
	_, _ = idx.Insert(9, "Three turntables form a triangle with sides of 4 meters around a single ValveStand.", false)

	e, j, ok := idx.Closest(seed)
	require.True(t, ok)
	assert.Equal(t, 5, e.ID)
	assert.Equal(t, 1.0, j)
}

func TestOptimalBands(t *testing.T) {
	b, r := OptimalBands(0.8, 128)
	assert.LessOrEqual(t, b*r, 128)
	assert.Greater(t, b, 1)
	assert.Greater(t, r, 1)

	lb, lr := OptimalBands(0.3, 128)
	assert.Less(t, lr, r, "lower thresholds need fewer rows per band")
	assert.Greater(t, lb, 0)
}

func TestJaccard(t *testing.T) {
	h := NewHasher(64)
	a := h.Sign(seed)
	assert.Equal(t, 1.0, Jaccard(a, h.Sign(seed)))
	assert.Equal(t, 0.0, Jaccard(a, Signature{1}))
	assert.Less(t, Jaccard(a, h.Sign("completely different words here")), 0.2)
}

func TestMergeShards(t *testing.T) {
	a := NewIndex(DefaultThreshold, DefaultNumPerm)
	b := NewIndex(DefaultThreshold, DefaultNumPerm)
	_, _ = a.Insert(3, "third description of a conveyor line", false)
	_, _ = a.Insert(1, seed, false)
	_, _ = b.Insert(2, "Three turntables form a triangle around a ValveStand.", false)

	m, err := MergeShards(a, b)
	require.NoError(t, err)
	ids := []int{}
	for _, e := range m.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)
	assert.False(t, m.CanInsert(seed))

	_, err = MergeShards(a, NewIndex(0.5, DefaultNumPerm))
	assert.Error(t, err)

	_, err = MergeShards(a, a)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}
