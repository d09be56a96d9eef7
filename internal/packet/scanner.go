package packet

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Scanner walks a byte stream recovered from video frames and yields every
// packet that parses and passes its checksum. Corruption is expected: on any
// parse failure the scanner advances a single byte and keeps searching for
// the magic, so a damaged region costs only the packets it overlaps.
//
// The sequence is finite and non-restartable; re-scanning the same bytes
// yields the same packets.
type Scanner struct {
	br         *bufio.Reader
	symbolSize int
	pktLen     int
	scanned    int
	rejected   int
}

// NewScanner wraps r, which must produce the raw byte stream extracted by
// the frame reader.
func NewScanner(r io.Reader, symbolSize int) *Scanner {
	pktLen := Len(symbolSize)
	bufSize := 4 * pktLen
	if bufSize < 4096 {
		bufSize = 4096
	}
	return &Scanner{
		br:         bufio.NewReaderSize(r, bufSize),
		symbolSize: symbolSize,
		pktLen:     pktLen,
	}
}

// Next returns the next valid packet, or io.EOF when the stream is
// exhausted. Any other error is a read failure from the underlying stream.
func (s *Scanner) Next() (*Packet, error) {
	for {
		window, err := s.br.Peek(s.pktLen)
		if len(window) < s.pktLen {
			// Not enough bytes left for a whole packet; nothing more
			// can ever parse.
			if err == nil || err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}

		idx := bytes.Index(window, []byte(Magic))
		if idx < 0 {
			// Keep the final magicLen-1 bytes in case the magic
			// straddles the window edge.
			s.br.Discard(len(window) - (magicLen - 1))
			continue
		}
		if idx > 0 {
			s.br.Discard(idx)
			continue
		}

		p, perr := Parse(window, s.symbolSize)
		if perr != nil {
			// Corrupt or unknown-version packet; slide one byte.
			s.rejected++
			s.br.Discard(1)
			continue
		}
		s.br.Discard(s.pktLen)
		s.scanned++
		return p, nil
	}
}

// Scanned returns how many valid packets have been produced so far.
func (s *Scanner) Scanned() int { return s.scanned }

// Rejected returns how many magic matches failed to parse.
func (s *Scanner) Rejected() int { return s.rejected }
