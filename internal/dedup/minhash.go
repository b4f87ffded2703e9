// Package dedup detects near-duplicate descriptions with MinHash signatures
// and banded locality-sensitive hashing.
package dedup

import (
	"encoding/binary"
	"math"
	"math/bits"
	"math/rand"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

// #region tokens

var (
	reWidePunct  = regexp.MustCompile(`[\x{3002}\x{ff1b}\x{ff0c}\x{ff1a}\x{201c}\x{201d}\x{ff08}\x{ff09}\x{3001}\x{ff1f}\x{300a}\x{300b}\x{ff0e}]`)
	reASCIIPunct = regexp.MustCompile("[!\"#$%&'()*+,\\-./:;<=>?@\\[\\\\\\]^_`{|}~\\n]")
)

// Tokens strips punctuation and splits on whitespace.
func Tokens(text string) []string {
	text = reWidePunct.ReplaceAllString(text, "")
	text = reASCIIPunct.ReplaceAllString(text, "")
	return strings.Fields(text)
}

// #endregion tokens

// #region minhash

const (
	mersennePrime = (1 << 61) - 1
	maxHash       = (1 << 32) - 1
	permSeed      = 1
)

// Signature is a MinHash signature.
type Signature []uint64

// Hasher computes signatures of a fixed width. Hashers with equal width
// produce comparable signatures.
type Hasher struct {
	a, b []uint64
}

// NewHasher draws numPerm permutations from a fixed seed.
func NewHasher(numPerm int) *Hasher {
	r := rand.New(rand.NewSource(permSeed))
	h := &Hasher{a: make([]uint64, numPerm), b: make([]uint64, numPerm)}
	for i := 0; i < numPerm; i++ {
		h.a[i] = uint64(r.Int63n(mersennePrime-1)) + 1
		h.b[i] = uint64(r.Int63n(mersennePrime))
	}
	return h
}

// Width is the number of permutations.
func (h *Hasher) Width() int { return len(h.a) }

// Sign computes the signature of text's token set.
func (h *Hasher) Sign(text string) Signature {
	sig := make(Signature, len(h.a))
	for i := range sig {
		sig[i] = maxHash
	}
	for _, tok := range Tokens(text) {
		sum := blake3.Sum256([]byte(tok))
		hv := binary.LittleEndian.Uint64(sum[:8]) & maxHash
		for i := range sig {
			hi, lo := bits.Mul64(h.a[i], hv)
			p := bits.Rem64(hi, lo, mersennePrime)
			p = (p + h.b[i]) % mersennePrime
			if v := p & maxHash; v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Jaccard estimates the token-set similarity of two signatures.
func Jaccard(a, b Signature) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	eq := 0
	for i := range a {
		if a[i] == b[i] {
			eq++
		}
	}
	return float64(eq) / float64(len(a))
}

// #endregion minhash

// #region banding

// OptimalBands picks bands and rows per band, bands*rows <= numPerm, that
// minimize the equally weighted false positive and false negative areas for
// threshold.
func OptimalBands(threshold float64, numPerm int) (bands, rows int) {
	best := math.Inf(1)
	for b := 1; b <= numPerm; b++ {
		for r := 1; r <= numPerm/b; r++ {
			fp := integrate(func(s float64) float64 {
				return 1 - math.Pow(1-math.Pow(s, float64(r)), float64(b))
			}, 0, threshold)
			fn := integrate(func(s float64) float64 {
				return math.Pow(1-math.Pow(s, float64(r)), float64(b))
			}, threshold, 1)
			if e := 0.5*fp + 0.5*fn; e < best {
				best, bands, rows = e, b, r
			}
		}
	}
	return bands, rows
}

// integrate is composite Simpson's rule.
func integrate(f func(float64) float64, lo, hi float64) float64 {
	const n = 200
	h := (hi - lo) / n
	sum := f(lo) + f(hi)
	for i := 1; i < n; i++ {
		w := 2.0
		if i%2 == 1 {
			w = 4
		}
		sum += w * f(lo+float64(i)*h)
	}
	return sum * h / 3
}

// #endregion banding
