// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package collision finds package identities whose names are near
// duplicates, such as one library published under several ecosystems or a
// look-alike name. Names are embedded as character trigram vectors and
// searched with an HNSW graph (github.com/coder/hnsw).
package collision

import (
	"cmp"
	"hash/fnv"
	"math"
	"math/rand"
	"slices"
	"strings"

	"github.com/coder/hnsw"

	"github.com/venslabs/depgraph/pkg/coordinate"
)

// Dimensions of a name embedding.
const Dimensions = 128

const (
	DefaultThreshold = 0.85
	DefaultNeighbors = 8
)

// Match is one neighbor returned by Index.Nearest.
type Match struct {
	Identity   coordinate.Identity `json:"identity"`
	Similarity float64             `json:"similarity"`
}

// Pair is two distinct identities with similar names. A sorts before B.
type Pair struct {
	A              coordinate.Identity `json:"a"`
	B              coordinate.Identity `json:"b"`
	Similarity     float64             `json:"similarity"`
	CrossEcosystem bool                `json:"crossEcosystem"`
}

// Index holds one embedding per identity.
type Index struct {
	g    *hnsw.Graph[uint32]
	ids  []coordinate.Identity
	ecos []string
	vecs [][]float32
	seen map[coordinate.Identity]bool
}

// New returns an empty index. Insertion levels come from a fixed seed, so
// the same insertions build the same graph.
func New() *Index {
	g := hnsw.NewGraph[uint32]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 32
	g.Rng = rand.New(rand.NewSource(1))
	return &Index{g: g, seen: make(map[coordinate.Identity]bool)}
}

// Add indexes c under its identity. Identities already indexed are ignored.
func (x *Index) Add(c coordinate.Coordinate) {
	id := c.Identity()
	if x.seen[id] {
		return
	}
	x.seen[id] = true
	vec := Embed(c.Name)
	key := uint32(len(x.ids))
	x.ids = append(x.ids, id)
	x.ecos = append(x.ecos, ecosystem(c))
	x.vecs = append(x.vecs, vec)
	x.g.Add(hnsw.MakeNode(key, vec))
}

// Len returns the number of indexed identities.
func (x *Index) Len() int { return len(x.ids) }

// Nearest returns up to k indexed identities with the names closest to c,
// most similar first. c itself is excluded.
func (x *Index) Nearest(c coordinate.Coordinate, k int) []Match {
	if k <= 0 || x.Len() == 0 {
		return nil
	}
	self := c.Identity()
	vec := Embed(c.Name)
	var out []Match
	for _, n := range x.g.Search(vec, k+1) {
		id := x.ids[n.Key]
		if id == self {
			continue
		}
		out = append(out, Match{Identity: id, Similarity: similarity(vec, x.vecs[n.Key])})
	}
	slices.SortFunc(out, func(a, b Match) int {
		return cmp.Or(cmp.Compare(b.Similarity, a.Similarity), cmp.Compare(a.Identity, b.Identity))
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

type options struct {
	threshold      float64
	neighbors      int
	crossEcosystem bool
}

type Option func(*options)

// WithThreshold sets the minimal similarity in [0,1] of a reported pair.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithNeighbors sets how many neighbors are examined per identity.
func WithNeighbors(k int) Option {
	return func(o *options) { o.neighbors = k }
}

// WithCrossEcosystemOnly reports only pairs from different ecosystems.
func WithCrossEcosystemOnly(enabled bool) Option {
	return func(o *options) { o.crossEcosystem = enabled }
}

// Detect indexes coords and returns the pairs of distinct identities whose
// names are at least as similar as the threshold, sorted by similarity
// descending then by identities.
func Detect(coords []coordinate.Coordinate, opts ...Option) []Pair {
	o := options{threshold: DefaultThreshold, neighbors: DefaultNeighbors}
	for _, f := range opts {
		f(&o)
	}

	sorted := slices.Clone(coords)
	slices.SortFunc(sorted, func(a, b coordinate.Coordinate) int { return cmp.Compare(a.Identity(), b.Identity()) })
	x := New()
	for _, c := range sorted {
		x.Add(c)
	}

	type key struct{ a, b coordinate.Identity }
	found := make(map[key]Pair)
	for i, id := range x.ids {
		for _, n := range x.g.Search(x.vecs[i], o.neighbors+1) {
			j := int(n.Key)
			if j == i {
				continue
			}
			cross := x.ecos[i] != x.ecos[j]
			if o.crossEcosystem && !cross {
				continue
			}
			sim := similarity(x.vecs[i], x.vecs[j])
			if sim < o.threshold {
				continue
			}
			a, b := id, x.ids[j]
			if b < a {
				a, b = b, a
			}
			found[key{a, b}] = Pair{A: a, B: b, Similarity: sim, CrossEcosystem: cross}
		}
	}

	out := make([]Pair, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	slices.SortFunc(out, func(p, q Pair) int {
		return cmp.Or(cmp.Compare(q.Similarity, p.Similarity), cmp.Compare(p.A, q.A), cmp.Compare(p.B, q.B))
	})
	return out
}

// Embed returns the L2-normalized trigram histogram of a package name.
// Case and the separators "-", "_" and "." are ignored.
func Embed(name string) []float32 {
	vec := make([]float32, Dimensions)
	s := "^" + normalize(name) + "$"
	r := []rune(s)
	for i := 0; i+3 <= len(r); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(r[i : i+3])))
		vec[h.Sum32()%Dimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

func normalize(name string) string {
	name = strings.ToLower(name)
	// golang module paths and scoped names: compare the last segment
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.':
			return -1
		}
		return r
	}, name)
}

// similarity is the cosine similarity of two normalized vectors, rounded
// to four decimals.
func similarity(a, b []float32) float64 {
	s := 1 - float64(hnsw.CosineDistance(a, b))
	return math.Round(s*1e4) / 1e4
}

func ecosystem(c coordinate.Coordinate) string {
	if c.Ecosystem == "" {
		return coordinate.GenericEcosystem
	}
	return c.Ecosystem
}
