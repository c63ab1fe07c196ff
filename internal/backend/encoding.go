package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeUtterance serializes captured audio packets into the ASR wire format:
// a 2-byte little-endian packet count followed by, per packet, a 2-byte
// little-endian length and the raw bytes.
func EncodeUtterance(packets [][]byte) ([]byte, error) {
	if len(packets) > math.MaxUint16 {
		return nil, fmt.Errorf("too many packets: %d", len(packets))
	}
	expected := 2
	for _, p := range packets {
		if len(p) > math.MaxUint16 {
			return nil, fmt.Errorf("packet too large: %d bytes", len(p))
		}
		expected += 2 + len(p)
	}
	buf := &bytes.Buffer{}
	buf.Grow(expected)
	binary.Write(buf, binary.LittleEndian, uint16(len(packets)))
	for _, p := range packets {
		binary.Write(buf, binary.LittleEndian, uint16(len(p)))
		buf.Write(p)
	}
	if buf.Len() != expected {
		// The encoded size is fully determined by the inputs; a mismatch
		// means memory corruption and recognition results would be garbage.
		panic(fmt.Sprintf("utterance encoding size mismatch: got %d want %d", buf.Len(), expected))
	}
	return buf.Bytes(), nil
}
