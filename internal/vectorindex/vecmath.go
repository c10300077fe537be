package vectorindex

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
)

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes into buf, growing it only when needed so a scan
// can reuse one buffer across rows.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b given a's precomputed norm.
// Zero vectors and length mismatches score 0.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot, bSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	if bSq == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bSq))
}

type keyScore struct {
	key   int64
	score float64
}

// keyScoreHeap is a min-heap on score; the root is the weakest candidate.
type keyScoreHeap []keyScore

func (h keyScoreHeap) Len() int { return len(h) }
func (h keyScoreHeap) Less(i, j int) bool {
	if h[i].score == h[j].score {
		return h[i].key > h[j].key
	}
	return h[i].score < h[j].score
}
func (h keyScoreHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *keyScoreHeap) Push(x any)   { *h = append(*h, x.(keyScore)) }
func (h *keyScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK keeps the k best-scoring keys seen so far.
type topK struct {
	k int
	h keyScoreHeap
}

func newTopK(k int) *topK {
	t := &topK{k: k, h: make(keyScoreHeap, 0, k)}
	heap.Init(&t.h)
	return t
}

func (t *topK) offer(key int64, score float64) {
	if t.k <= 0 {
		return
	}
	c := keyScore{key: key, score: score}
	if t.h.Len() < t.k {
		heap.Push(&t.h, c)
		return
	}
	// Replace the root if c beats it under the same ordering as the heap.
	root := t.h[0]
	if score > root.score || (score == root.score && key < root.key) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// keys drains the heap closest-first. Ties go to the lower key.
func (t *topK) keys() []int64 {
	out := make([]int64, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(keyScore).key
	}
	return out
}
