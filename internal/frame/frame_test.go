package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/kmirek/vtape/internal/config"
)

func testConfig(bitsPerBlock int) config.Config {
	cfg := config.Default()
	cfg.Width = 64
	cfg.Height = 64
	cfg.BitsPerBlock = bitsPerBlock
	cfg.Workers = 4
	return cfg
}

func TestPaintExtractRoundTrip(t *testing.T) {
	for bpb := 1; bpb <= 3; bpb++ {
		cfg := testConfig(bpb)
		rng := rand.New(rand.NewSource(int64(bpb)))

		// Several frames worth of payload, not frame aligned.
		payload := make([]byte, 3*cfg.BitsPerFrame()/8+11)
		rng.Read(payload)

		var video bytes.Buffer
		frames, err := NewPainter(cfg).Paint(bytes.NewReader(payload), &video)
		if err != nil {
			t.Fatalf("bpb=%d: Paint failed: %v", bpb, err)
		}

		wantFrames := (len(payload)*8 + cfg.BitsPerFrame() - 1) / cfg.BitsPerFrame()
		if frames != wantFrames {
			t.Fatalf("bpb=%d: painted %d frames, want %d", bpb, frames, wantFrames)
		}
		if video.Len() != frames*cfg.FrameBytes() {
			t.Fatalf("bpb=%d: video is %d bytes, want %d", bpb, video.Len(), frames*cfg.FrameBytes())
		}

		var out bytes.Buffer
		readFrames, err := NewExtractor(cfg).Extract(bytes.NewReader(video.Bytes()), &out)
		if err != nil {
			t.Fatalf("bpb=%d: Extract failed: %v", bpb, err)
		}
		if readFrames != frames {
			t.Fatalf("bpb=%d: extracted %d frames, want %d", bpb, readFrames, frames)
		}

		got := out.Bytes()
		if len(got) < len(payload) {
			t.Fatalf("bpb=%d: extracted only %d bytes, want at least %d", bpb, len(got), len(payload))
		}
		if !bytes.Equal(got[:len(payload)], payload) {
			t.Fatalf("bpb=%d: extracted payload differs from painted payload", bpb)
		}
		// The tail comes from neutral blocks and must be zero bits.
		for i := len(payload); i < len(got); i++ {
			if got[i] != 0 {
				t.Fatalf("bpb=%d: neutral tail byte %d is %#x, want 0", bpb, i, got[i])
			}
		}
	}
}

func TestPaintFillsTailWithNeutralGrey(t *testing.T) {
	cfg := testConfig(1)
	// One byte: eight bits, so blocks 8.. of the only frame are neutral.
	var video bytes.Buffer
	frames, err := NewPainter(cfg).Paint(bytes.NewReader([]byte{0xA5}), &video)
	if err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
	if frames != 1 {
		t.Fatalf("painted %d frames, want 1", frames)
	}

	pix := video.Bytes()
	// The final block row of the frame carries no bits.
	lastRowStart := (cfg.Height - 8) * cfg.Width
	for i := lastRowStart; i < len(pix); i++ {
		if pix[i] != neutralPixel {
			t.Fatalf("tail pixel %d is %d, want %d", i, pix[i], neutralPixel)
		}
	}
}

func TestPaintEmptyStream(t *testing.T) {
	cfg := testConfig(1)
	var video bytes.Buffer
	frames, err := NewPainter(cfg).Paint(bytes.NewReader(nil), &video)
	if err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
	if frames != 0 || video.Len() != 0 {
		t.Fatalf("empty stream painted %d frames, %d bytes", frames, video.Len())
	}
}

func TestExtractDiscardsTruncatedFrame(t *testing.T) {
	cfg := testConfig(1)
	payload := make([]byte, cfg.BitsPerFrame()/8)
	rand.New(rand.NewSource(3)).Read(payload)

	var video bytes.Buffer
	if _, err := NewPainter(cfg).Paint(bytes.NewReader(payload), &video); err != nil {
		t.Fatalf("Paint failed: %v", err)
	}

	// Chop the container mid-frame: the partial frame is dropped.
	truncated := video.Bytes()[:video.Len()-cfg.FrameBytes()/2]
	var out bytes.Buffer
	frames, err := NewExtractor(cfg).Extract(bytes.NewReader(truncated), &out)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if frames != 0 {
		t.Fatalf("extracted %d frames from a half frame, want 0", frames)
	}
}

func TestPaintDeterministic(t *testing.T) {
	cfg := testConfig(2)
	payload := make([]byte, 2000)
	rand.New(rand.NewSource(5)).Read(payload)

	var a, b bytes.Buffer
	if _, err := NewPainter(cfg).Paint(bytes.NewReader(payload), &a); err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
	if _, err := NewPainter(cfg).Paint(bytes.NewReader(payload), &b); err != nil {
		t.Fatalf("Paint failed: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("two paints of the same stream differ")
	}
}

func TestBitReaderWriterRoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	br := newBitReader(bytes.NewReader(payload))

	var out bytes.Buffer
	bw := newBitWriter(&out)
	for {
		bit, err := br.ReadBit()
		if err != nil {
			break
		}
		if werr := bw.WriteBit(bit); werr != nil {
			t.Fatalf("WriteBit failed: %v", werr)
		}
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("bit round trip: got %x, want %x", out.Bytes(), payload)
	}
}

func TestBitWriterDropsPartialByte(t *testing.T) {
	var out bytes.Buffer
	bw := newBitWriter(&out)
	for i := 0; i < 11; i++ { // one full byte plus three stray bits
		bw.WriteBit(true)
	}
	bw.Flush()
	if out.Len() != 1 {
		t.Fatalf("flushed %d bytes, want 1", out.Len())
	}
	if out.Bytes()[0] != 0xFF {
		t.Fatalf("flushed byte %#x, want 0xff", out.Bytes()[0])
	}
}

func TestBufferPoolRecycles(t *testing.T) {
	p := NewBufferPool(16)
	buf := p.Get()
	if len(buf) != 16 {
		t.Fatalf("Get returned %d bytes, want 16", len(buf))
	}
	p.Put(buf)
	p.Get()
	hits, misses := p.Stats()
	if misses < 1 {
		t.Fatalf("misses = %d, want at least 1", misses)
	}
	_ = hits // sync.Pool may drop buffers under GC pressure; hits are best effort
}
