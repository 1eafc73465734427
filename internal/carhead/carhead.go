// Package carhead parses CAR (Content Addressable aRchive) v1/v2 headers
// from the leading bytes of an HTTP response body, extracting the root CID
// so it can be checked against the expected piece CID.
package carhead

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var (
	errInvalidMultibasePrefix = errors.New("carhead: missing multibase 'b' prefix")
	errInvalidBase32Char      = errors.New("carhead: invalid base32-lower character")
)

// carV2Pragma is the fixed 11-byte prefix identifying CARv2 format.
var carV2Pragma = []byte{0x0a, 0xa1, 0x67, 0x76, 0x65, 0x72, 0x73, 0x69, 0x6f, 0x6e, 0x02}

const base32LowerAlphabet = "abcdefghijklmnopqrstuvwxyz234567"

// Header is the outcome of parsing a CAR header.
type Header struct {
	Valid      bool
	Version    int
	RootCID    string
	HeaderSize int
}

// ParseHeader parses bytes as a CAR v1 or v2 header and extracts the root
// CID. An invalid or truncated header yields a zero-value, !Valid result —
// never an error — since the caller treats "not a CAR" as just another
// verdict input, not a failure.
func ParseHeader(bytes []byte) Header {
	if len(bytes) == 0 {
		return Header{}
	}

	if len(bytes) >= len(carV2Pragma) && hasPrefix(bytes, carV2Pragma) {
		return parseV2(bytes)
	}

	return parseV1(bytes)
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func parseV1(bytes []byte) Header {
	headerLen, varintSize, ok := ReadVarint(bytes)
	if !ok {
		return Header{}
	}

	if headerLen > 10_000 {
		return Header{}
	}

	headerEnd := varintSize + int(headerLen)
	if len(bytes) < headerEnd {
		return Header{}
	}

	var decoded struct {
		Version uint64     `cbor:"version"`
		Roots   []cbor.Tag `cbor:"roots"`
	}
	if err := cbor.Unmarshal(bytes[varintSize:headerEnd], &decoded); err != nil {
		return Header{}
	}

	if decoded.Version != 1 {
		return Header{}
	}

	return Header{
		Valid:      true,
		Version:    1,
		RootCID:    extractRootCID(decoded.Roots),
		HeaderSize: headerEnd,
	}
}

func parseV2(bytes []byte) Header {
	const headerStart = 11
	const headerSize = 40
	const dataOffsetPos = headerStart + 16

	if len(bytes) < headerStart+headerSize {
		return Header{}
	}

	dataOffsetU64 := leUint64(bytes[dataOffsetPos : dataOffsetPos+8])
	dataOffset := int(dataOffsetU64)
	if dataOffset < 0 || uint64(dataOffset) != dataOffsetU64 {
		return Header{}
	}

	if len(bytes) <= dataOffset {
		return Header{}
	}

	inner := parseV1(bytes[dataOffset:])
	if inner.Valid {
		inner.Version = 2
		inner.HeaderSize = dataOffset + inner.HeaderSize
	}
	return inner
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

func extractRootCID(roots []cbor.Tag) string {
	if len(roots) == 0 {
		return ""
	}
	first := roots[0]
	if first.Number != 42 {
		return ""
	}
	cidBytes, ok := first.Content.([]byte)
	if !ok || len(cidBytes) == 0 || cidBytes[0] != 0x00 {
		return ""
	}
	return EncodeBase32Lower(cidBytes[1:])
}

// ReadVarint reads an unsigned LEB128 varint from the start of bytes,
// returning (value, bytesConsumed, ok). It refuses varints longer than 10
// bytes (the maximum encoding of a u64) and reports !ok on an incomplete
// sequence.
func ReadVarint(bytes []byte) (value uint64, consumed int, ok bool) {
	var result uint64
	var shift uint

	for i, b := range bytes {
		if i >= 10 {
			return 0, 0, false
		}

		result |= uint64(b&0x7F) << shift

		if b&0x80 == 0 {
			return result, i + 1, true
		}

		shift += 7
	}

	return 0, 0, false
}

// EncodeBase32Lower encodes bytes as multibase base32-lower (RFC 4648
// lowercase alphabet, 'b' prefix), matching the identity-multibase CID
// re-encoding used by the storage network.
func EncodeBase32Lower(bytes []byte) string {
	result := make([]byte, 0, 1+(len(bytes)*8+4)/5)
	result = append(result, 'b')

	var buffer uint64
	var bitsInBuffer uint

	for _, b := range bytes {
		buffer = (buffer << 8) | uint64(b)
		bitsInBuffer += 8

		for bitsInBuffer >= 5 {
			bitsInBuffer -= 5
			index := (buffer >> bitsInBuffer) & 0x1F
			result = append(result, base32LowerAlphabet[index])
		}
	}

	if bitsInBuffer > 0 {
		index := (buffer << (5 - bitsInBuffer)) & 0x1F
		result = append(result, base32LowerAlphabet[index])
	}

	return string(result)
}

// DecodeBase32Lower decodes a multibase base32-lower string (with its 'b'
// prefix) back to raw bytes. It is the inverse of EncodeBase32Lower; within
// this module only the round-trip tests call it.
func DecodeBase32Lower(s string) ([]byte, error) {
	if len(s) == 0 || s[0] != 'b' {
		return nil, errInvalidMultibasePrefix
	}
	s = s[1:]

	var buffer uint64
	var bitsInBuffer uint
	out := make([]byte, 0, len(s)*5/8)

	for _, r := range s {
		idx := indexInAlphabet(byte(r))
		if idx < 0 {
			return nil, errInvalidBase32Char
		}
		buffer = (buffer << 5) | uint64(idx)
		bitsInBuffer += 5

		if bitsInBuffer >= 8 {
			bitsInBuffer -= 8
			out = append(out, byte(buffer>>bitsInBuffer))
		}
	}

	return out, nil
}

func indexInAlphabet(c byte) int {
	for i := 0; i < len(base32LowerAlphabet); i++ {
		if base32LowerAlphabet[i] == c {
			return i
		}
	}
	return -1
}
