package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoPackets means the scanner found nothing at all in the extracted
// bit stream: wrong dimensions, wrong bits per block, or not a vtape
// container.
var ErrNoPackets = errors.New("no packets recovered from video")

// ErrPasswordRequired means the stream is encrypted and no password was
// supplied.
var ErrPasswordRequired = errors.New("stream is encrypted and no password was supplied")

// MissingChunksError reports chunk indices for which no packet at all
// survived.
type MissingChunksError struct {
	Chunks []uint32
	Total  uint32
}

func (e *MissingChunksError) Error() string {
	return fmt.Sprintf("missing %d of %d chunks: %v", len(e.Chunks), e.Total, e.Chunks)
}

// UnrecoverableChunksError reports chunks whose received symbols span
// fewer than k independent equations.
type UnrecoverableChunksError struct {
	Chunks []uint32
}

func (e *UnrecoverableChunksError) Error() string {
	return fmt.Sprintf("fountain decoding failed for chunks %v", e.Chunks)
}
