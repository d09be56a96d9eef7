package fountain

import (
	"fmt"
)

// Symbol is one emitted unit: a verbatim source slice (Seed == 0,
// Index < k) or an XOR combination of a seed-derived subset.
type Symbol struct {
	Index uint32
	Seed  uint32
	Data  []byte
}

// Encoder turns chunks into symbol sets.
type Encoder struct {
	symbolSize int
	overhead   float64
}

// NewEncoder configures an encoder. overhead must be >= 1.0.
func NewEncoder(symbolSize int, overhead float64) *Encoder {
	return &Encoder{symbolSize: symbolSize, overhead: overhead}
}

// SourceSymbols returns k for a chunk of the given byte length. A zero
// length chunk still occupies one symbol.
func (e *Encoder) SourceSymbols(chunkLen int) int {
	k := (chunkLen + e.symbolSize - 1) / e.symbolSize
	if k == 0 {
		k = 1
	}
	return k
}

// Encode splits data into k source symbols (the tail zero-padded to the
// symbol size) and emits n = ceil(k * overhead) symbols total. Repair
// symbols are seeded from (fileID, chunkIndex, symbolIndex).
func (e *Encoder) Encode(fileID []byte, chunkIndex uint32, data []byte) ([]Symbol, error) {
	k := e.SourceSymbols(len(data))
	if k > MaxK {
		return nil, fmt.Errorf("chunk of %d bytes needs %d symbols, exceeding the %d limit", len(data), k, MaxK)
	}
	n := SymbolCount(k, e.overhead)

	source := make([][]byte, k)
	for i := 0; i < k; i++ {
		s := make([]byte, e.symbolSize)
		lo := i * e.symbolSize
		if lo < len(data) {
			copy(s, data[lo:])
		}
		source[i] = s
	}

	symbols := make([]Symbol, 0, n)
	for i := 0; i < k; i++ {
		symbols = append(symbols, Symbol{Index: uint32(i), Seed: 0, Data: source[i]})
	}
	for j := k; j < n; j++ {
		seed := SeedFor(fileID, chunkIndex, uint32(j))
		payload := make([]byte, e.symbolSize)
		for _, idx := range IndicesFor(seed, k) {
			xorInto(payload, source[idx])
		}
		symbols = append(symbols, Symbol{Index: uint32(j), Seed: seed, Data: payload})
	}
	return symbols, nil
}
