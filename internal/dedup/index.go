package dedup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// #region index

// Defaults used by the augmentation run.
const (
	DefaultThreshold = 0.8
	DefaultNumPerm   = 128
)

// Entry is one accepted text.
type Entry struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Index is an append-only signature store for one generation run. It is not
// safe for concurrent use; give each worker its own shard.
type Index struct {
	threshold   float64
	hasher      *Hasher
	bands, rows int
	buckets     []map[[16]byte][]int
	texts       map[int]string
	sigs        map[int]Signature
}

// NewIndex creates an empty index. Non-positive arguments select the
// defaults.
func NewIndex(threshold float64, numPerm int) *Index {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if numPerm <= 0 {
		numPerm = DefaultNumPerm
	}
	b, r := OptimalBands(threshold, numPerm)
	idx := &Index{
		threshold: threshold,
		hasher:    NewHasher(numPerm),
		bands:     b,
		rows:      r,
		buckets:   make([]map[[16]byte][]int, b),
		texts:     make(map[int]string),
		sigs:      make(map[int]Signature),
	}
	for i := range idx.buckets {
		idx.buckets[i] = make(map[[16]byte][]int)
	}
	return idx
}

// Params reports the threshold, width and band layout.
func (x *Index) Params() (threshold float64, numPerm, bands, rows int) {
	return x.threshold, x.hasher.Width(), x.bands, x.rows
}

// Len is the number of stored texts.
func (x *Index) Len() int { return len(x.texts) }

func (x *Index) bandKey(sig Signature, band int) [16]byte {
	buf := make([]byte, 8*x.rows)
	for i := 0; i < x.rows; i++ {
		binary.LittleEndian.PutUint64(buf[8*i:], sig[band*x.rows+i])
	}
	sum := blake3.Sum256(buf)
	var k [16]byte
	copy(k[:], sum[:16])
	return k
}

// candidates returns ids sharing at least one band with sig.
func (x *Index) candidates(sig Signature) []int {
	seen := make(map[int]bool)
	var out []int
	for band := 0; band < x.bands; band++ {
		for _, id := range x.buckets[band][x.bandKey(sig, band)] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Closest returns the stored entry most similar to text among LSH
// candidates. Ties go to the lower id.
func (x *Index) Closest(text string) (Entry, float64, bool) {
	return x.closest(x.hasher.Sign(text))
}

func (x *Index) closest(sig Signature) (Entry, float64, bool) {
	bestID, best, found := 0, -1.0, false
	for _, id := range x.candidates(sig) {
		j := Jaccard(sig, x.sigs[id])
		if !found || j > best || (j == best && id < bestID) {
			bestID, best, found = id, j, true
		}
	}
	if !found {
		return Entry{}, 0, false
	}
	return Entry{ID: bestID, Text: x.texts[bestID]}, best, true
}

// CanInsert reports whether text may join the index. A text is refused when
// its closest match is identical or is not contained in it; pure
// extensions of a stored text are allowed.
func (x *Index) CanInsert(text string) bool {
	return x.canInsert(text, x.hasher.Sign(text))
}

func (x *Index) canInsert(text string, sig Signature) bool {
	match, _, ok := x.closest(sig)
	if !ok {
		return true
	}
	return match.Text != text && strings.Contains(text, match.Text)
}

// ErrDuplicateID is returned when an id is inserted twice.
var ErrDuplicateID = errors.New("duplicate id")

// Insert stores text under id. With check set, a text refused by CanInsert
// is not stored and Insert reports false.
func (x *Index) Insert(id int, text string, check bool) (bool, error) {
	if _, dup := x.texts[id]; dup {
		return false, fmt.Errorf("%w %d", ErrDuplicateID, id)
	}
	sig := x.hasher.Sign(text)
	if check && !x.canInsert(text, sig) {
		return false, nil
	}
	x.texts[id] = text
	x.sigs[id] = sig
	for band := 0; band < x.bands; band++ {
		k := x.bandKey(sig, band)
		x.buckets[band][k] = append(x.buckets[band][k], id)
	}
	return true, nil
}

// Entries lists stored texts sorted by id.
func (x *Index) Entries() []Entry {
	out := make([]Entry, 0, len(x.texts))
	for id, t := range x.texts {
		out = append(out, Entry{ID: id, Text: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// #endregion index

// #region shards

// MergeShards concatenates worker shards into one index, inserting entries
// unchecked in id order. All shards must share threshold and width.
func MergeShards(shards ...*Index) (*Index, error) {
	if len(shards) == 0 {
		return NewIndex(DefaultThreshold, DefaultNumPerm), nil
	}
	t, n, _, _ := shards[0].Params()
	var all []Entry
	for i, s := range shards {
		st, sn, _, _ := s.Params()
		if st != t || sn != n {
			return nil, fmt.Errorf("shard %d: params (%.2f, %d) differ from (%.2f, %d)", i, st, sn, t, n)
		}
		all = append(all, s.Entries()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	merged := NewIndex(t, n)
	for _, e := range all {
		if _, err := merged.Insert(e.ID, e.Text, false); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	return merged, nil
}

// #endregion shards
