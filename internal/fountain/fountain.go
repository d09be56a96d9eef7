// Package fountain implements the erasure code that lets a decode survive
// arbitrary packet loss: source symbols are carried verbatim and repair
// symbols are XOR combinations of a seed-derived subset, so any large
// enough set of received symbols reconstructs the chunk.
//
// Everything here is deterministic. The seed of repair symbol j is a
// BLAKE2s digest of (file ID, chunk index, j), and the combination set is
// regenerated from the seed alone, so encoder and decoder agree
// bit-for-bit without side channels.
package fountain

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/crypto/blake2s"
)

// MaxK bounds the per-chunk source-symbol count; the packet header stores
// k and the symbol index in 16 bits.
const MaxK = math.MaxUint16

// maxDegree bounds repair-symbol degree. Low degrees keep the peeling
// decoder effective at small k.
const maxDegree = 8

// ErrUnrecoverable is returned when the received symbols span fewer than k
// independent equations.
var ErrUnrecoverable = errors.New("fountain: not enough independent symbols")

// SymbolCount returns n, the total number of symbols emitted for a chunk
// with k source symbols at the given repair overhead.
func SymbolCount(k int, overhead float64) int {
	n := int(math.Ceil(float64(k) * overhead))
	if n < k {
		n = k
	}
	return n
}

// SeedFor derives the repair seed for one symbol:
// big-endian BLAKE2s-256(fileID || be32(chunkIndex) || be32(symbolIndex))[0:4].
func SeedFor(fileID []byte, chunkIndex, symbolIndex uint32) uint32 {
	var idx [8]byte
	binary.BigEndian.PutUint32(idx[0:4], chunkIndex)
	binary.BigEndian.PutUint32(idx[4:8], symbolIndex)

	h, _ := blake2s.New256(nil)
	h.Write(fileID)
	h.Write(idx[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// prf is a counter-mode BLAKE2s stream of uint32 draws keyed by a seed.
type prf struct {
	seed    uint32
	counter uint32
	block   [blake2s.Size]byte
	off     int
}

func newPRF(seed uint32) *prf {
	return &prf{seed: seed, off: blake2s.Size}
}

func (p *prf) next() uint32 {
	if p.off+4 > blake2s.Size {
		var in [8]byte
		binary.BigEndian.PutUint32(in[0:4], p.seed)
		binary.BigEndian.PutUint32(in[4:8], p.counter)
		p.counter++
		p.block = blake2s.Sum256(in[:])
		p.off = 0
	}
	v := binary.BigEndian.Uint32(p.block[p.off : p.off+4])
	p.off += 4
	return v
}

// IndicesFor regenerates the source-symbol subset a repair seed combines.
// The degree is uniform over {2..min(k, maxDegree)} (pinned to 1 when
// k == 1) and the indices are distinct and uniform over [0, k).
func IndicesFor(seed uint32, k int) []int {
	if k <= 1 {
		return []int{0}
	}

	p := newPRF(seed)

	top := k
	if top > maxDegree {
		top = maxDegree
	}
	degree := 2 + int(p.next()%uint32(top-1))

	selected := make(map[int]struct{}, degree)
	for len(selected) < degree {
		selected[int(p.next()%uint32(k))] = struct{}{}
	}

	indices := make([]int, 0, degree)
	for idx := range selected {
		indices = append(indices, idx)
	}
	// Order does not affect the XOR, but a canonical form keeps callers
	// and tests honest.
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j] < indices[j-1]; j-- {
			indices[j], indices[j-1] = indices[j-1], indices[j]
		}
	}
	return indices
}

func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
