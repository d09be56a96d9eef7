// Package packet implements the wire unit embedded in video frames: a fixed
// 50-byte header followed by one fountain symbol.
//
// All integers are big-endian. The checksum is CRC-32/MPEG-2 over every
// header byte preceding the checksum field plus the payload, so any single
// corrupted byte outside the checksum itself is detected.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kmirek/vtape/internal/integrity"
)

const (
	// Magic prefixes every packet.
	Magic = "YTS3"

	// Version is the current format revision. Bumping it is a breaking
	// change to the coefficient order, salt construction or header layout.
	Version = 2

	// HeaderLen is the fixed header size including the checksum.
	HeaderLen = 50

	// FileIDLen is the size of the per-encode identifier.
	FileIDLen = 16

	magicLen    = 4
	crcOffset   = HeaderLen - 4
	reservedLen = 4
)

var (
	ErrShort       = errors.New("packet: buffer too short")
	ErrBadMagic    = errors.New("packet: bad magic")
	ErrBadVersion  = errors.New("packet: unknown version")
	ErrBadChecksum = errors.New("packet: checksum mismatch")
)

// Header carries everything a decoder needs to place one symbol.
type Header struct {
	FileID           [FileIDLen]byte
	TotalChunks      uint32
	ChunkIndex       uint32
	K                uint16 // source-symbol count of this chunk
	SymbolIndex      uint16
	Seed             uint32 // 0 for source symbols
	ChunkOriginalLen uint32 // pre-padding byte count of the chunk
	Encrypted        bool
}

// Packet is a header plus exactly one symbol of payload.
type Packet struct {
	Header
	Payload []byte
}

// Len returns the serialized size of a packet carrying symbolSize payload
// bytes.
func Len(symbolSize int) int {
	return HeaderLen + symbolSize
}

// AppendMarshal serializes the packet and appends it to dst, filling in the
// checksum last.
func (p *Packet) AppendMarshal(dst []byte) []byte {
	start := len(dst)
	dst = append(dst, Magic...)
	dst = append(dst, Version)
	dst = append(dst, p.FileID[:]...)
	dst = binary.BigEndian.AppendUint32(dst, p.TotalChunks)
	dst = binary.BigEndian.AppendUint32(dst, p.ChunkIndex)
	dst = binary.BigEndian.AppendUint16(dst, p.K)
	dst = binary.BigEndian.AppendUint16(dst, p.SymbolIndex)
	dst = binary.BigEndian.AppendUint32(dst, p.Seed)
	dst = binary.BigEndian.AppendUint32(dst, p.ChunkOriginalLen)
	if p.Encrypted {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = append(dst, make([]byte, reservedLen)...)

	crc := integrity.Update(integrity.ChecksumInit, dst[start:start+crcOffset])
	crc = integrity.Update(crc, p.Payload)
	dst = binary.BigEndian.AppendUint32(dst, crc)
	return append(dst, p.Payload...)
}

// Marshal serializes the packet into a fresh buffer.
func (p *Packet) Marshal() []byte {
	return p.AppendMarshal(make([]byte, 0, Len(len(p.Payload))))
}

// Parse decodes and verifies one packet from the front of b. The payload is
// copied out of b so callers may reuse the buffer.
func Parse(b []byte, symbolSize int) (*Packet, error) {
	total := Len(symbolSize)
	if len(b) < total {
		return nil, ErrShort
	}
	if string(b[:magicLen]) != Magic {
		return nil, ErrBadMagic
	}
	if b[magicLen] != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, b[magicLen])
	}

	crc := integrity.Update(integrity.ChecksumInit, b[:crcOffset])
	crc = integrity.Update(crc, b[HeaderLen:total])
	if crc != binary.BigEndian.Uint32(b[crcOffset:HeaderLen]) {
		return nil, ErrBadChecksum
	}

	var p Packet
	copy(p.FileID[:], b[5:21])
	p.TotalChunks = binary.BigEndian.Uint32(b[21:25])
	p.ChunkIndex = binary.BigEndian.Uint32(b[25:29])
	p.K = binary.BigEndian.Uint16(b[29:31])
	p.SymbolIndex = binary.BigEndian.Uint16(b[31:33])
	p.Seed = binary.BigEndian.Uint32(b[33:37])
	p.ChunkOriginalLen = binary.BigEndian.Uint32(b[37:41])
	p.Encrypted = b[41] != 0
	p.Payload = append([]byte(nil), b[HeaderLen:total]...)
	return &p, nil
}
