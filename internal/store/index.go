package store

import (
	"sort"
	"time"
)

// flatIndex is an exact in-memory vector index over unit vectors, so cosine
// similarity is a dot product. Guarded by Store.mu.
type flatIndex struct {
	ids  []string
	ts   []time.Time
	vecs [][]float32
	pos  map[string]int
}

func newFlatIndex() *flatIndex {
	return &flatIndex{pos: make(map[string]int)}
}

func (x *flatIndex) add(id string, ts time.Time, v []float32) {
	x.pos[id] = len(x.ids)
	x.ids = append(x.ids, id)
	x.ts = append(x.ts, ts)
	x.vecs = append(x.vecs, v)
}

func (x *flatIndex) len() int { return len(x.ids) }

func (x *flatIndex) vector(id string) ([]float32, bool) {
	i, ok := x.pos[id]
	if !ok {
		return nil, false
	}
	return x.vecs[i], true
}

type scored struct {
	id    string
	ts    time.Time
	score float64
}

// topK scores every vector against q and returns the k best, ordered by
// score, then newest timestamp, then id (both descending).
func (x *flatIndex) topK(q []float32, k int) []scored {
	all := make([]scored, len(x.ids))
	for i, v := range x.vecs {
		all[i] = scored{id: x.ids[i], ts: x.ts[i], score: dot(q, v)}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.ts.Equal(b.ts) {
			return a.ts.After(b.ts)
		}
		return a.id > b.id
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
