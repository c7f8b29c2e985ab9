package store

import (
	"math"
	"sort"
)

// flatIndex is an exact L2 index over contiguous float32 storage.
// Position i of the index covers data[i*dim : (i+1)*dim].
type flatIndex struct {
	dim  int
	data []float32
}

type candidate struct {
	pos      int
	distance float64 // squared L2
}

func (f *flatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

func (f *flatIndex) add(vectors [][]float32) {
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
}

func (f *flatIndex) reset(dim int) {
	f.dim = dim
	f.data = nil
}

// nearest returns up to n positions by ascending distance to query.
// Ties keep insertion order.
func (f *flatIndex) nearest(query []float32, n int) []candidate {
	total := f.Len()
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}

	// Brute force; collections are built from a handful of documents.
	scores := make([]candidate, total)
	for i := 0; i < total; i++ {
		scores[i] = candidate{
			pos:      i,
			distance: squaredL2(query, f.data[i*f.dim:(i+1)*f.dim]),
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].distance < scores[j].distance
	})

	return scores[:n]
}

// squaredL2 calculates the squared Euclidean distance between two vectors.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func euclidean(squared float64) float64 {
	return math.Sqrt(squared)
}
