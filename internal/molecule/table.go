// Package molecule implements just enough of the CKB molecule
// serialization format to read Spore and Cluster cell data. The full
// Spore molecule schema is an external collaborator (spec §1: "assumed
// available as a parser"); this package is the minimal concrete stand-in
// so the rest of the server has something to call. It only supports the
// two shapes the decode pipeline needs: a dynamic-length table of
// `Bytes`-typed fields, and the `Bytes` primitive itself.
package molecule

import (
	"encoding/binary"
	"fmt"
)

// DecodeBytes reads a molecule `Bytes` value: a 4-byte little-endian
// length prefix followed by that many raw bytes.
func DecodeBytes(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("molecule: Bytes header truncated (%d bytes)", len(data))
	}
	size := binary.LittleEndian.Uint32(data[:4])
	if uint64(4+size) > uint64(len(data)) {
		return nil, fmt.Errorf("molecule: Bytes length %d exceeds buffer %d", size, len(data)-4)
	}
	return data[4 : 4+size], nil
}

// DecodeTable reads a molecule dynamic-size table: a 4-byte total-size
// header, followed by one 4-byte field offset per field, followed by the
// field payloads back to back. The field count is derived from the first
// offset (it always points just past the offset array).
//
// Each returned field slice is the *raw* bytes of that field as stored in
// the table; for fields of type `Bytes` the caller still needs to run
// DecodeBytes on the result.
func DecodeTable(data []byte) ([][]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("molecule: table header truncated (%d bytes)", len(data))
	}
	totalSize := binary.LittleEndian.Uint32(data[:4])
	if uint64(totalSize) != uint64(len(data)) {
		return nil, fmt.Errorf("molecule: table total_size %d does not match buffer length %d", totalSize, len(data))
	}

	firstOffset := binary.LittleEndian.Uint32(data[4:8])
	if firstOffset < 8 || firstOffset%4 != 0 {
		return nil, fmt.Errorf("molecule: invalid first field offset %d", firstOffset)
	}
	fieldCount := (firstOffset - 4) / 4

	offsets := make([]uint32, fieldCount+1)
	for i := uint32(0); i < fieldCount; i++ {
		pos := 4 + i*4
		if uint64(pos+4) > uint64(len(data)) {
			return nil, fmt.Errorf("molecule: offset table truncated")
		}
		offsets[i] = binary.LittleEndian.Uint32(data[pos : pos+4])
	}
	offsets[fieldCount] = totalSize

	fields := make([][]byte, fieldCount)
	for i := uint32(0); i < fieldCount; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || uint64(end) > uint64(len(data)) {
			return nil, fmt.Errorf("molecule: field %d offsets [%d, %d) out of range", i, start, end)
		}
		fields[i] = data[start:end]
	}
	return fields, nil
}

// DecodeOptionalBytes decodes a molecule `BytesOpt` field: zero-length
// means None, otherwise the field holds a nested `Bytes` value.
func DecodeOptionalBytes(field []byte) ([]byte, bool, error) {
	if len(field) == 0 {
		return nil, false, nil
	}
	inner, err := DecodeBytes(field)
	if err != nil {
		return nil, false, err
	}
	return inner, true, nil
}
