// Package codec serializes bucket contents to and from their on-disk form.
//
// The canonical form is binary: a 4-byte magic header followed by records,
// each record [1B key length][key bytes][4B count][count x 4B int32], all
// integers big-endian. Files written before the binary format existed use a
// tab-separated text form; Decode recognizes those by the missing magic and
// reports them as legacy so the caller can rewrite them on the next flush.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Magic identifies a canonical binary bucket file: "SPB1".
	Magic = "SPB1"

	// MaxKeyLen is the longest encodable key; the record format stores the
	// key length in a single byte.
	MaxKeyLen = 255
)

// Bucket maps keys to their value sets. Every value slice is strictly
// ascending with no duplicates; mutators maintain the invariant on each
// change, the codec never sorts.
type Bucket map[string][]int32

// FormatError reports malformed canonical bytes past the magic header.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("bucket format error at offset %d: %s", e.Offset, e.Reason)
}

// Encode serializes a bucket in canonical binary form. Record order follows
// map iteration order and is not meaningful; consumers must not depend on
// it. Fails only on a key longer than MaxKeyLen.
func Encode(b Bucket) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Magic)

	for key, vals := range b {
		if len(key) > MaxKeyLen {
			return nil, fmt.Errorf("key %q exceeds %d bytes", key, MaxKeyLen)
		}
		buf.WriteByte(byte(len(key)))
		buf.WriteString(key)

		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(vals)))
		buf.Write(n[:])
		for _, v := range vals {
			binary.BigEndian.PutUint32(n[:], uint32(v))
			buf.Write(n[:])
		}
	}
	return buf.Bytes(), nil
}

// Decode parses bucket bytes in either format. Empty input is an empty
// bucket. Input starting with the magic header is parsed as canonical
// binary; a record truncated or malformed past the header is a
// *FormatError. Anything else is parsed as the legacy text form and
// reported with legacy=true so the caller can schedule a rewrite.
func Decode(data []byte) (b Bucket, legacy bool, err error) {
	if len(data) == 0 {
		return Bucket{}, false, nil
	}
	if len(data) >= len(Magic) && string(data[:len(Magic)]) == Magic {
		b, err = decodeBinary(data[len(Magic):], len(Magic))
		return b, false, err
	}
	return decodeLegacy(data), true, nil
}

func decodeBinary(data []byte, base int) (Bucket, error) {
	b := Bucket{}
	off := 0
	for off < len(data) {
		keyLen := int(data[off])
		off++
		if off+keyLen > len(data) {
			return nil, &FormatError{Offset: base + off, Reason: "truncated key"}
		}
		key := string(data[off : off+keyLen])
		off += keyLen

		if off+4 > len(data) {
			return nil, &FormatError{Offset: base + off, Reason: "truncated value count"}
		}
		count := binary.BigEndian.Uint32(data[off : off+4])
		off += 4

		// Compare in uint64: 4*count overflows int on 32-bit platforms
		// when the count field is garbage.
		if uint64(count) > uint64((len(data)-off)/4) {
			return nil, &FormatError{Offset: base + off, Reason: fmt.Sprintf("truncated value list (want %d values)", count)}
		}
		vals := make([]int32, count)
		for i := range vals {
			vals[i] = int32(binary.BigEndian.Uint32(data[off : off+4]))
			off += 4
		}
		if _, dup := b[key]; dup {
			return nil, &FormatError{Offset: base + off, Reason: fmt.Sprintf("duplicate key %q", key)}
		}
		b[key] = vals
	}
	return b, nil
}

// decodeLegacy parses the pre-binary text form: one key per line,
// <key>\t<count>\t<space-separated ascending values>. The count field is
// tolerated but not trusted; values are whatever the rest of the line
// holds. Lines that don't match are skipped, matching the permissiveness
// of the original reader.
func decodeLegacy(data []byte) Bucket {
	b := Bucket{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		key := parts[0]
		var vals []int32
		for _, field := range strings.Fields(parts[2]) {
			v, err := strconv.ParseInt(field, 10, 32)
			if err != nil {
				break
			}
			vals = append(vals, int32(v))
		}
		b[key] = vals
	}
	return b
}
