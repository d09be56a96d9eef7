// Package frame converts the packet bit stream into raw grayscale frames
// and back. Bits are painted into 8x8 blocks in raster order, coefficients
// consumed in the canonical carrier order; blocks past the end of the
// stream stay neutral mid-grey.
//
// Frames are independent, so painting and extraction fan out across a
// worker pool; an ordered job queue keeps the frames arriving at the sink
// in sequence.
package frame

import (
	"fmt"
	"io"

	"github.com/kmirek/vtape/internal/config"
	"github.com/kmirek/vtape/internal/dct"
)

// neutralPixel is the value of blocks that carry no bit.
const neutralPixel = 128

type paintJob struct {
	index int
	bits  []byte // packed MSB-first
	nbits int
	out   []byte
	done  chan struct{}
}

// Painter turns a packet byte stream into frames.
type Painter struct {
	width        int
	height       int
	bitsPerBlock int
	strength     float64
	workers      int
	bitsPerFrame int
	pool         *BufferPool
}

// NewPainter builds a painter from the validated config.
func NewPainter(cfg config.Config) *Painter {
	return &Painter{
		width:        cfg.Width,
		height:       cfg.Height,
		bitsPerBlock: cfg.BitsPerBlock,
		strength:     cfg.CoefficientStrength,
		workers:      cfg.Workers,
		bitsPerFrame: cfg.BitsPerFrame(),
		pool:         NewBufferPool(cfg.FrameBytes()),
	}
}

// Paint reads the packet byte stream from src and writes whole frames to
// sink in order. It returns the number of frames emitted.
func (p *Painter) Paint(src io.Reader, sink io.Writer) (int, error) {
	pending := make(chan *paintJob, p.workers*2)
	slots := make(chan struct{}, p.workers)
	stop := make(chan struct{})
	defer close(stop)

	go p.feed(src, pending, slots, stop)

	frames := 0
	var firstErr error
	for job := range pending {
		<-job.done
		if firstErr != nil {
			p.pool.Put(job.out)
			continue // drain
		}
		if _, err := sink.Write(job.out); err != nil {
			firstErr = fmt.Errorf("failed to write frame %d: %w", job.index, err)
			p.pool.Put(job.out)
			continue
		}
		frames++
		p.pool.Put(job.out)
	}
	return frames, firstErr
}

// feed slices the bit stream into per-frame jobs and dispatches workers.
// Jobs enter the pending queue in frame order; the slot channel bounds
// concurrency.
func (p *Painter) feed(src io.Reader, pending chan<- *paintJob, slots chan struct{}, stop <-chan struct{}) {
	defer close(pending)

	br := newBitReader(src)
	index := 0
	for {
		bits := make([]byte, (p.bitsPerFrame+7)/8)
		nbits := 0
		for nbits < p.bitsPerFrame {
			bit, err := br.ReadBit()
			if err != nil {
				break
			}
			if bit {
				bits[nbits/8] |= 0x80 >> (nbits % 8)
			}
			nbits++
		}
		if nbits == 0 {
			return
		}

		job := &paintJob{index: index, bits: bits, nbits: nbits, done: make(chan struct{})}
		index++

		select {
		case pending <- job:
		case <-stop:
			close(job.done)
			return
		}
		select {
		case slots <- struct{}{}:
		case <-stop:
			close(job.done)
			return
		}

		go func(j *paintJob) {
			defer func() { <-slots }()
			defer close(j.done)
			j.out = p.paintFrame(j.bits, j.nbits)
		}(job)

		if nbits < p.bitsPerFrame {
			return // stream exhausted mid-frame
		}
	}
}

// paintFrame renders one frame: neutral grey, then one block per
// bitsPerBlock bits until the job's bits run out. When the bits end inside
// a block, its remaining carriers are written as zero bits.
func (p *Painter) paintFrame(bits []byte, nbits int) []byte {
	out := p.pool.Get()
	for i := range out {
		out[i] = neutralPixel
	}

	blocksX := p.width / dct.BlockSize
	blocksY := p.height / dct.BlockSize
	bitPos := 0

	for by := 0; by < blocksY && bitPos < nbits; by++ {
		for bx := 0; bx < blocksX && bitPos < nbits; bx++ {
			block := dct.Neutral()
			for c := 0; c < p.bitsPerBlock; c++ {
				bit := false
				if bitPos < nbits {
					bit = bits[bitPos/8]&(0x80>>(bitPos%8)) != 0
					bitPos++
				}
				pos := dct.CoefficientOrder[c]
				block.EmbedBit(pos[0], pos[1], bit, p.strength)
			}
			block.WritePixels(out, p.width, bx*dct.BlockSize, by*dct.BlockSize)
		}
	}
	return out
}
