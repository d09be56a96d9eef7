package dct

import (
	"math"
	"math/rand"
	"testing"
)

func TestBasisOrthonormal(t *testing.T) {
	for a := 0; a < BlockSize; a++ {
		for b := 0; b < BlockSize; b++ {
			var dot float64
			for y := 0; y < BlockSize; y++ {
				dot += basis[a][y] * basis[b][y]
			}
			want := 0.0
			if a == b {
				want = 1.0
			}
			if math.Abs(dot-want) > 1e-12 {
				t.Fatalf("basis rows %d,%d dot product %v, want %v", a, b, dot, want)
			}
		}
	}
}

func TestCoefficientOrderIsCanonical(t *testing.T) {
	// The carrier positions are part of the wire format. A change here is
	// a breaking format revision.
	want := [3][2]int{{1, 2}, {2, 1}, {2, 2}}
	if CoefficientOrder != want {
		t.Fatalf("CoefficientOrder = %v, want %v", CoefficientOrder, want)
	}
}

func TestEmbedSetsCoefficientExactly(t *testing.T) {
	var b Block
	b.EmbedBit(1, 2, true, 150)
	if got := b.Project(1, 2); math.Abs(got-150) > 1e-9 {
		t.Fatalf("coefficient after embed = %v, want 150", got)
	}
	b.EmbedBit(1, 2, false, 150)
	if got := b.Project(1, 2); math.Abs(got+150) > 1e-9 {
		t.Fatalf("coefficient after re-embed = %v, want -150", got)
	}
}

func TestEmbedPositionsIndependent(t *testing.T) {
	// Bits written at distinct carrier positions must not disturb each
	// other: the basis functions are orthogonal.
	var b Block
	b.EmbedBit(1, 2, true, 150)
	b.EmbedBit(2, 1, false, 150)
	b.EmbedBit(2, 2, true, 150)

	if got := b.Project(1, 2); math.Abs(got-150) > 1e-9 {
		t.Fatalf("(1,2) = %v after later embeds, want 150", got)
	}
	if got := b.Project(2, 1); math.Abs(got+150) > 1e-9 {
		t.Fatalf("(2,1) = %v, want -150", got)
	}
	if got := b.Project(2, 2); math.Abs(got-150) > 1e-9 {
		t.Fatalf("(2,2) = %v, want 150", got)
	}
}

func TestEmbedExtractThroughPixels(t *testing.T) {
	// Fidelity must survive rounding and clamping to byte pixels.
	rng := rand.New(rand.NewSource(21))
	pix := make([]byte, BlockSize*BlockSize)

	for trial := 0; trial < 200; trial++ {
		for i := range pix {
			// Mid-range noise; embedding rides on top of it.
			pix[i] = byte(64 + rng.Intn(128))
		}
		for _, pos := range CoefficientOrder {
			for _, bit := range []bool{false, true} {
				b := FromPixels(pix, BlockSize, 0, 0)
				b.EmbedBit(pos[0], pos[1], bit, 150)

				out := make([]byte, len(pix))
				b.WritePixels(out, BlockSize, 0, 0)

				rb := FromPixels(out, BlockSize, 0, 0)
				if got := rb.ExtractBit(pos[0], pos[1]); got != bit {
					t.Fatalf("trial %d pos %v: extracted %v, want %v", trial, pos, got, bit)
				}
			}
		}
	}
}

func TestEmbedExtractAllBitsPerBlock(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	pix := make([]byte, BlockSize*BlockSize)

	for trial := 0; trial < 100; trial++ {
		for i := range pix {
			pix[i] = byte(64 + rng.Intn(128))
		}
		bits := [3]bool{rng.Intn(2) == 1, rng.Intn(2) == 1, rng.Intn(2) == 1}

		b := FromPixels(pix, BlockSize, 0, 0)
		for i, pos := range CoefficientOrder {
			b.EmbedBit(pos[0], pos[1], bits[i], 150)
		}
		out := make([]byte, len(pix))
		b.WritePixels(out, BlockSize, 0, 0)

		rb := FromPixels(out, BlockSize, 0, 0)
		for i, pos := range CoefficientOrder {
			if got := rb.ExtractBit(pos[0], pos[1]); got != bits[i] {
				t.Fatalf("trial %d bit %d: extracted %v, want %v", trial, i, got, bits[i])
			}
		}
	}
}

func TestNeutralBlockProjectsToZero(t *testing.T) {
	b := Neutral()
	for _, pos := range CoefficientOrder {
		if got := b.Project(pos[0], pos[1]); got != 0 {
			t.Fatalf("neutral block projects to %v at %v", got, pos)
		}
	}
}

func TestWritePixelsClamps(t *testing.T) {
	// Embedding into an all-white block pushes the positive lobes past
	// 255. Those clamp, but the negative lobes still pull the projection
	// to the right sign.
	pix := make([]byte, BlockSize*BlockSize)
	for i := range pix {
		pix[i] = 255
	}
	b := FromPixels(pix, BlockSize, 0, 0)
	b.EmbedBit(1, 2, true, 1000)

	out := make([]byte, len(pix))
	b.WritePixels(out, BlockSize, 0, 0)

	lowered := false
	for _, p := range out {
		if p < 255 {
			lowered = true
		}
	}
	if !lowered {
		t.Fatal("embed left an all-white block untouched")
	}

	rb := FromPixels(out, BlockSize, 0, 0)
	if !rb.ExtractBit(1, 2) {
		t.Fatal("one bit lost to clamping on a saturated block")
	}
}

func TestFromPixelsRespectsStride(t *testing.T) {
	stride := 32
	pix := make([]byte, stride*BlockSize)
	pix[2*stride+3+8] = 200 // block at x0=8: local (y=2, x=3)

	b := FromPixels(pix, stride, 8, 0)
	if b[2*BlockSize+3] != 200-128 {
		t.Fatalf("stride handling wrong: got %v", b[2*BlockSize+3])
	}
}
