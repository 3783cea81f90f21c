// Package loader reads a bytecode image, Intel-HEX encoded with a trailing
// CRC16/CCITT-FALSE checksum record, into the heap's code area. It is a
// program-loading collaborator for the heap manager, not part of it: the
// heap package only ever sees the decoded words.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/sigurn/crc16"
)

// trailerLen is the size, in bytes, of the CRC16 trailer Pack appends after
// the image bytes.
const trailerLen = 2

var crcTable = crc16.MakeTable(crc16.CCITT_FALSE)

// Image is a decoded bytecode program: a flat byte slice meant to be copied
// word-by-word into the arena's code area.
type Image struct {
	Bytes []byte
}

// Load parses an Intel-HEX document from r, verifies its trailing CRC16
// checksum, and returns the decoded program bytes (without the trailer).
func Load(r io.Reader) (Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return Image{}, fmt.Errorf("loader: parsing intel-hex: %w", err)
	}

	var lo, hi uint32
	first := true
	for _, seg := range mem.GetDataSegments() {
		start := seg.Address
		end := start + uint32(len(seg.Data))
		if first || start < lo {
			lo = start
		}
		if first || end > hi {
			hi = end
		}
		first = false
	}
	if first {
		return Image{}, fmt.Errorf("loader: intel-hex document has no data segments")
	}

	raw := mem.ToBinary(lo, hi-lo, 0)
	if len(raw) < trailerLen {
		return Image{}, fmt.Errorf("loader: image too short to contain a checksum trailer")
	}

	body := raw[:len(raw)-trailerLen]
	want := binary.LittleEndian.Uint16(raw[len(raw)-trailerLen:])
	got := crc16.Checksum(body, crcTable)
	if got != want {
		return Image{}, fmt.Errorf("loader: checksum mismatch: image=%#04x computed=%#04x", want, got)
	}

	return Image{Bytes: body}, nil
}

// Pack is the inverse of Load: it appends a CRC16/CCITT-FALSE trailer to
// body and Intel-HEX encodes the result, writing it to w. The test suite
// uses it to produce images Load can consume.
func Pack(w io.Writer, body []byte) error {
	sum := crc16.Checksum(body, crcTable)
	trailer := make([]byte, trailerLen)
	binary.LittleEndian.PutUint16(trailer, sum)

	mem := gohex.NewMemory()
	mem.AddBinary(0, append(append([]byte{}, body...), trailer...))

	var buf bytes.Buffer
	if err := mem.DumpIntelHex(&buf, 16); err != nil {
		return fmt.Errorf("loader: encoding intel-hex: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Words reinterprets an Image's bytes as little-endian 32-bit words,
// padding the final word with zero bytes if the image length isn't a
// multiple of the word size.
func (img Image) Words() []uint32 {
	n := (len(img.Bytes) + 3) / 4
	words := make([]uint32, n)
	padded := img.Bytes
	if rem := len(img.Bytes) % 4; rem != 0 {
		padded = append(append([]byte{}, img.Bytes...), make([]byte, 4-rem)...)
	}
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(padded[i*4 : i*4+4])
	}
	return words
}
