// Package augment grows a seed set of scene descriptions by asking the
// oracle to evolve randomly chosen parents with one of six rewrite methods.
package augment

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/records"
)

// #region methods

// Method identifies one evolution method.
type Method int

const (
	MethodAddObjects Method = iota
	MethodCoordinates
	MethodRelative
	MethodQuantity
	MethodFuzzy
	MethodRewrite
)

var methodTexts = [...]string{
	MethodAddObjects:  "Add or replace one or more objects in the #Given Description#. The objects must be chosen from: [%s].",
	MethodCoordinates: "Specify the locations of the objects mentioned in the #Given Description# on the ground in format [x, y, 0] with reasonable coordinate values in millimeters, which should be greater than -5000 and less than 5000. The Euclidean distance between objects should be greater than 1 meter and less than 5 meters. Keep the name of the objects.",
	MethodRelative:    "Specify the relative position between two objects mentioned in #Given Description#. The relative position may include distance, direction, or orientation. The distance should have reasonable value in meters. The Euclidean distance between objects should be greater than 1 meter and less than 5 meters. Keep the name of the objects.",
	MethodQuantity:    "If there is an object that is not assigned with coordinates or relative positions, change its quantity in the #Given Description# to %d. Do not add other objects.",
	MethodFuzzy:       "If there are two objects, replace the relative position description of them with a fuzzy expression, such as front, back, left, right, next to, and remove the numerical values. Do not add other objects.",
	MethodRewrite:     "Rewrite the #Given Description# with a similar meaning like an industrial engineer would. Keep the name of the objects.",
}

var methodWeights = [...]float64{5, 6, 6, 1, 5, 1}

// itemWeights follows catalog.ItemList order.
var itemWeights = []float64{
	4,
	2, 1, 1,
	2, 2,
	2, 2,
	4, 2, 2,
	2, 2, 2, 2,
}

const (
	minAddedItems = 2
	maxAddedItems = 4

	quantityMean = 4.0
	minQuantity  = 3
	maxQuantity  = 10
)

// #endregion methods

// #region sampler

// Sampler draws parents, methods and method arguments from one seeded
// source so a run is reproducible.
type Sampler struct {
	rng      *rand.Rand
	items    []string
	quantity []float64
}

// NewSampler seeds a sampler.
func NewSampler(seed uint64) *Sampler {
	q := make([]float64, 0, maxQuantity-minQuantity+1)
	for k := minQuantity; k <= maxQuantity; k++ {
		q = append(q, poissonPMF(k, quantityMean))
	}
	return &Sampler{
		rng:      rand.New(rand.NewPCG(seed, seed)),
		items:    catalog.ItemList(),
		quantity: q,
	}
}

// Parent picks one of ids uniformly.
func (s *Sampler) Parent(ids []int) int {
	return ids[s.rng.IntN(len(ids))]
}

// Method picks a method for parent and renders its text. The quantity
// method is never picked twice along one lineage.
func (s *Sampler) Method(parent records.Description) (Method, string) {
	w := methodWeights
	if parent.HasQuantityChanged {
		w[MethodQuantity] = 0
	}
	m := Method(s.weighted(w[:]))
	switch m {
	case MethodAddObjects:
		return m, fmt.Sprintf(methodTexts[m], strings.Join(s.Items(), ", "))
	case MethodQuantity:
		return m, fmt.Sprintf(methodTexts[m], s.Quantity())
	}
	return m, methodTexts[m]
}

// Items draws two to four distinct catalog items by weight.
func (s *Sampler) Items() []string {
	n := minAddedItems + s.rng.IntN(maxAddedItems-minAddedItems+1)
	w := append([]float64(nil), itemWeights...)
	out := make([]string, 0, n)
	for range n {
		i := s.weighted(w)
		out = append(out, s.items[i])
		w[i] = 0
	}
	return out
}

// Quantity draws from Poisson(4) truncated to [3, 10].
func (s *Sampler) Quantity() int {
	return minQuantity + s.weighted(s.quantity)
}

func (s *Sampler) weighted(w []float64) int {
	total := 0.0
	for _, v := range w {
		total += v
	}
	r := s.rng.Float64() * total
	last := 0
	for i, v := range w {
		if v == 0 {
			continue
		}
		if r < v {
			return i
		}
		r -= v
		last = i
	}
	return last
}

func poissonPMF(k int, lambda float64) float64 {
	lg, _ := math.Lgamma(float64(k) + 1)
	return math.Exp(float64(k)*math.Log(lambda) - lambda - lg)
}

// #endregion sampler
