// Package wire implements the framed binary packet codec shared by the
// server and client: a fixed 32-byte big-endian header, CRC32 integrity,
// and length-limited payloads.
package wire

import (
	"errors"
	"hash/crc32"
	"io"

	"github.com/asciichat/asciichat-go/internal/bin"
)

const (
	// Magic identifies the protocol on the wire.
	Magic uint32 = 0xA5C11CA7
	// ProtocolVersion is the only version byte this codec accepts.
	ProtocolVersion uint8 = 1
	// HeaderLen is the fixed size of the packet header in bytes.
	HeaderLen = 32
	// DefaultMaxFrameBytes bounds payload_len absent an explicit override.
	DefaultMaxFrameBytes = 4 << 20
)

// Type is the closed set of packet types carried on the wire.
type Type uint16

const (
	TypeHello Type = iota + 1
	TypeServerHello
	TypeAuthRequest
	TypeAuthChallenge
	TypeAuthResponse
	TypeSessionEstablished
	TypeCapabilities
	TypeVideoFrame
	TypeAudioBatch
	TypePing
	TypePong
	TypeClientJoin
	TypeClientLeave
	TypeGridLayout
	TypeError
	TypeClose
)

// Flag bits carried in the header's flags field.
type Flag uint16

const (
	// FlagNonFatal marks a packet whose unknown Type must be skipped rather
	// than treated as a protocol violation.
	FlagNonFatal Flag = 1 << iota
	// FlagCompressed marks a payload that was compressed before encryption.
	FlagCompressed
	// FlagSealed marks a payload that is AEAD-sealed ciphertext.
	FlagSealed
)

var (
	ErrBadMagic           = errors.New("wire: bad magic")
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrOversizedPayload   = errors.New("wire: oversized payload")
	ErrTruncated          = errors.New("wire: truncated")
	ErrCrcMismatch        = errors.New("wire: crc mismatch")
	ErrUnknownFatalType   = errors.New("wire: unknown packet type")
)

// Header is the self-describing 32-byte packet header.
type Header struct {
	Type       Type
	Flags      Flag
	ClientID   uint32
	Seq        uint64
	PayloadLen uint32
	CRC32      uint32
}

// Packet pairs a decoded header with its payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// Encode serializes header and payload into a single frame. CRC32 is
// computed over the header (with the crc32 field zeroed) concatenated with
// the payload, matching the bit-exact layout fixed by the wire format.
func Encode(h Header, payload []byte, maxFrameBytes int) ([]byte, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	if len(payload) > maxFrameBytes {
		return nil, ErrOversizedPayload
	}
	h.PayloadLen = uint32(len(payload))

	buf := make([]byte, HeaderLen+len(payload))
	putHeader(buf[:HeaderLen], h, 0)
	copy(buf[HeaderLen:], payload)

	crc := crc32.ChecksumIEEE(buf)
	bin.PutU32BE(buf[28:32], crc)
	return buf, nil
}

// Decode reads exactly one framed packet from r.
func Decode(r io.Reader, maxFrameBytes int) (Packet, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	hdrBuf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, ErrTruncated
		}
		return Packet{}, err
	}
	magic := bin.U32BE(hdrBuf[0:4])
	if magic != Magic {
		return Packet{}, ErrBadMagic
	}
	version := hdrBuf[4]
	if version != ProtocolVersion {
		return Packet{}, ErrUnsupportedVersion
	}
	h := Header{
		Type:       Type(bin.U16BE(hdrBuf[6:8])),
		Flags:      Flag(bin.U16BE(hdrBuf[8:10])),
		ClientID:   bin.U32BE(hdrBuf[12:16]),
		Seq:        bin.U64BE(hdrBuf[16:24]),
		PayloadLen: bin.U32BE(hdrBuf[24:28]),
		CRC32:      bin.U32BE(hdrBuf[28:32]),
	}
	if int64(h.PayloadLen) > int64(maxFrameBytes) {
		return Packet{}, ErrOversizedPayload
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return Packet{}, ErrTruncated
			}
			return Packet{}, err
		}
	}

	check := make([]byte, HeaderLen+len(payload))
	putHeader(check[:HeaderLen], h, 0)
	copy(check[HeaderLen:], payload)
	if crc32.ChecksumIEEE(check) != h.CRC32 {
		return Packet{}, ErrCrcMismatch
	}

	return Packet{Header: h, Payload: payload}, nil
}

// putHeader writes the 32-byte header layout:
//
//	magic(4) version(1) reserved(1) type(2) flags(2) reserved(2)
//	client_id(4) seq(8) payload_len(4) crc32(4)
func putHeader(dst []byte, h Header, crc uint32) {
	bin.PutU32BE(dst[0:4], Magic)
	dst[4] = ProtocolVersion
	dst[5] = 0
	bin.PutU16BE(dst[6:8], uint16(h.Type))
	bin.PutU16BE(dst[8:10], uint16(h.Flags))
	dst[10] = 0
	dst[11] = 0
	bin.PutU32BE(dst[12:16], h.ClientID)
	bin.PutU64BE(dst[16:24], h.Seq)
	bin.PutU32BE(dst[24:28], h.PayloadLen)
	bin.PutU32BE(dst[28:32], crc)
}

// KnownType reports whether t is a member of the closed PacketType set.
func KnownType(t Type) bool {
	return t >= TypeHello && t <= TypeClose
}

// AAD returns the header's associated-data bytes for AEAD seal/open: the
// 32-byte header layout with the crc32 field zeroed, per the wire
// contract's "AAD includes the packet header with CRC zeroed".
func (h Header) AAD() []byte {
	buf := make([]byte, HeaderLen)
	putHeader(buf, h, 0)
	return buf
}
