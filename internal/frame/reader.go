package frame

import (
	"fmt"
	"io"

	"github.com/kmirek/vtape/internal/config"
	"github.com/kmirek/vtape/internal/dct"
)

type extractJob struct {
	index int
	pix   []byte
	bits  []byte
	nbits int
	done  chan struct{}
}

// Extractor recovers the packet byte stream from decoded frames.
type Extractor struct {
	width        int
	height       int
	bitsPerBlock int
	workers      int
	frameBytes   int
	bitsPerFrame int
	pool         *BufferPool
}

// NewExtractor builds an extractor from the validated config. It must use
// the same width, height and bits per block the painter used.
func NewExtractor(cfg config.Config) *Extractor {
	return &Extractor{
		width:        cfg.Width,
		height:       cfg.Height,
		bitsPerBlock: cfg.BitsPerBlock,
		workers:      cfg.Workers,
		frameBytes:   cfg.FrameBytes(),
		bitsPerFrame: cfg.BitsPerFrame(),
		pool:         NewBufferPool(cfg.FrameBytes()),
	}
}

// Extract reads whole frames from src until EOF, extracts their bits in
// painting order and writes the concatenated byte stream to sink. A
// truncated trailing frame is discarded. It returns the number of frames
// processed.
func (e *Extractor) Extract(src io.Reader, sink io.Writer) (int, error) {
	pending := make(chan *extractJob, e.workers*2)
	slots := make(chan struct{}, e.workers)
	stop := make(chan struct{})
	defer close(stop)

	feedErr := make(chan error, 1)
	go e.feed(src, pending, slots, stop, feedErr)

	bw := newBitWriter(sink)
	frames := 0
	var firstErr error
	for job := range pending {
		<-job.done
		if firstErr == nil {
			if err := bw.WritePacked(job.bits, job.nbits); err != nil {
				firstErr = fmt.Errorf("failed to write extracted bits of frame %d: %w", job.index, err)
			} else {
				frames++
			}
		}
		e.pool.Put(job.pix)
	}
	if firstErr != nil {
		return frames, firstErr
	}
	if err := <-feedErr; err != nil {
		return frames, err
	}
	if err := bw.Flush(); err != nil {
		return frames, fmt.Errorf("failed to flush extracted bits: %w", err)
	}
	return frames, nil
}

func (e *Extractor) feed(src io.Reader, pending chan<- *extractJob, slots chan struct{}, stop <-chan struct{}, feedErr chan<- error) {
	defer close(pending)

	index := 0
	for {
		pix := e.pool.Get()
		_, err := io.ReadFull(src, pix)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// A short read is a truncated container tail; whole
			// frames only.
			e.pool.Put(pix)
			feedErr <- nil
			return
		}
		if err != nil {
			e.pool.Put(pix)
			feedErr <- fmt.Errorf("failed to read frame %d: %w", index, err)
			return
		}

		job := &extractJob{index: index, pix: pix, done: make(chan struct{})}
		index++

		select {
		case pending <- job:
		case <-stop:
			close(job.done)
			feedErr <- nil
			return
		}
		select {
		case slots <- struct{}{}:
		case <-stop:
			close(job.done)
			feedErr <- nil
			return
		}

		go func(j *extractJob) {
			defer func() { <-slots }()
			defer close(j.done)
			j.bits, j.nbits = e.extractFrame(j.pix)
		}(job)
	}
}

// extractFrame pulls every carrier bit of one frame in raster block
// order, packed MSB first.
func (e *Extractor) extractFrame(pix []byte) ([]byte, int) {
	bits := make([]byte, (e.bitsPerFrame+7)/8)
	blocksX := e.width / dct.BlockSize
	blocksY := e.height / dct.BlockSize

	bitPos := 0
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			block := dct.FromPixels(pix, e.width, bx*dct.BlockSize, by*dct.BlockSize)
			for c := 0; c < e.bitsPerBlock; c++ {
				pos := dct.CoefficientOrder[c]
				if block.ExtractBit(pos[0], pos[1]) {
					bits[bitPos/8] |= 0x80 >> (bitPos % 8)
				}
				bitPos++
			}
		}
	}
	return bits, bitPos
}
