package augment

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/dedup"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

const seedText = "A Kuka Robot KR125 is placed at [0, 0, 0]. A Welding Table is placed at [2000, 0, 0]. " +
	"Two Cabinet units stand to the left of the Welding Table, and a Conveyor runs behind the Kuka Robot KR125."

const extended = seedText + " A Guarding surrounds all objects."

// #region sampler-tests

func TestSamplerDeterministic(t *testing.T) {
	a, b := NewSampler(42), NewSampler(42)
	parent := records.Description{ID: 1}
	for range 50 {
		ma, ta := a.Method(parent)
		mb, tb := b.Method(parent)
		require.Equal(t, ma, mb)
		require.Equal(t, ta, tb)
	}
}

func TestQuantityMethodDisabledAfterUse(t *testing.T) {
	s := NewSampler(7)
	parent := records.Description{ID: 1, HasQuantityChanged: true}
	for range 2000 {
		m, _ := s.Method(parent)
		require.NotEqual(t, MethodQuantity, m)
	}
}

func TestAllMethodsReachable(t *testing.T) {
	s := NewSampler(1)
	seen := map[Method]bool{}
	for range 5000 {
		m, text := s.Method(records.Description{})
		seen[m] = true
		assert.NotContains(t, text, "%")
	}
	assert.Len(t, seen, len(methodTexts))
}

func TestItemsDistinctFromCatalog(t *testing.T) {
	s := NewSampler(3)
	items := catalog.ItemList()
	for range 500 {
		got := s.Items()
		require.GreaterOrEqual(t, len(got), minAddedItems)
		require.LessOrEqual(t, len(got), maxAddedItems)
		seen := map[string]bool{}
		for _, it := range got {
			require.True(t, slices.Contains(items, it), it)
			require.False(t, seen[it], "duplicate %q", it)
			seen[it] = true
		}
	}
}

func TestQuantityTruncated(t *testing.T) {
	s := NewSampler(9)
	counts := map[int]int{}
	for range 3000 {
		q := s.Quantity()
		require.GreaterOrEqual(t, q, minQuantity)
		require.LessOrEqual(t, q, maxQuantity)
		counts[q]++
	}
	// Poisson(4) puts most mass on 3 and 4.
	assert.Greater(t, counts[4], counts[8])
	assert.Greater(t, counts[3], counts[9])
}

func TestItemWeightsCoverCatalog(t *testing.T) {
	assert.Len(t, itemWeights, len(catalog.ItemList()))
}

// #endregion sampler-tests

// #region run-tests

func newAugmenter(t *testing.T, opts Options, replies ...string) (*Augmenter, *oracle.TranscriptBackend) {
	t.Helper()
	c, tb := oracle.NewScripted(replies...)
	a := New(c, validate.DescriptionChecker{}, dedup.NewIndex(0, 0), nil, opts, nil)
	return a, tb
}

func seeds() []records.Description {
	return []records.Description{{ID: 5, Description: seedText}}
}

func TestRunAcceptsAfterDuplicateFeedback(t *testing.T) {
	a, tb := newAugmenter(t, Options{Needed: 1, IDStartFrom: 1, Seed: 42}, seedText, extended)
	var buf bytes.Buffer

	res, err := a.Run(context.Background(), seeds(), records.NewWriter(&buf))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 0, res.Skipped)

	out, err := records.Decode[records.Description](&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 5, out[0].ID)

	d := out[1]
	assert.Equal(t, 6, d.ID)
	assert.Equal(t, extended, d.Description)
	assert.Equal(t, 5, d.ParentID)
	assert.Equal(t, 1, d.Depth)
	assert.NotEmpty(t, d.Method)
	assert.Equal(t, strings.Contains(d.Method, "change its quantity"), d.HasQuantityChanged)

	calls := tb.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[1], 3)
	assert.Equal(t, seedText, calls[1][1].Content)
	assert.Contains(t, calls[1][2].Content, DuplicateReason)
}

func TestRunFeedsLocalViolations(t *testing.T) {
	banned := seedText + " The Turntable is north of the Conveyor."
	a, tb := newAugmenter(t, Options{Needed: 1, IDStartFrom: 100}, banned, extended)
	var buf bytes.Buffer

	res, err := a.Run(context.Background(), seeds(), records.NewWriter(&buf))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 100, res.Records[0].ID)
	assert.Contains(t, tb.Calls()[1][2].Content, "[north]")
}

func TestRunSkipsWhenBoundExhausted(t *testing.T) {
	a, tb := newAugmenter(t, Options{Needed: 1}, seedText, seedText, seedText)
	var buf bytes.Buffer

	res, err := a.Run(context.Background(), seeds(), records.NewWriter(&buf))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Accepted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, orchestrator.DefaultBounds()[orchestrator.StageAugment], len(tb.Calls()))
	// Accumulated history: request plus two exchanges.
	assert.Len(t, tb.Calls()[2], 5)

	out, err := records.Decode[records.Description](&buf)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRunEmptyReplyConsumesRound(t *testing.T) {
	a, tb := newAugmenter(t, Options{Needed: 1}, "", extended)
	var buf bytes.Buffer

	res, err := a.Run(context.Background(), seeds(), records.NewWriter(&buf))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	calls := tb.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1], 1)
}

func TestRunTransportErrorIsHard(t *testing.T) {
	a, _ := newAugmenter(t, Options{Needed: 1})
	var buf bytes.Buffer

	_, err := a.Run(context.Background(), seeds(), records.NewWriter(&buf))
	require.Error(t, err)
	assert.True(t, oracle.IsTransport(err))
}

func TestRunNeedsSeeds(t *testing.T) {
	a, _ := newAugmenter(t, Options{Needed: 1})
	_, err := a.Run(context.Background(), nil, records.NewWriter(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestRunRejectsDuplicateSeedIDs(t *testing.T) {
	a, _ := newAugmenter(t, Options{Needed: 0})
	dup := []records.Description{{ID: 1, Description: "A Cabinet."}, {ID: 1, Description: "A Conveyor."}}
	_, err := a.Run(context.Background(), dup, records.NewWriter(&bytes.Buffer{}))
	assert.ErrorIs(t, err, dedup.ErrDuplicateID)
}

// #endregion run-tests
