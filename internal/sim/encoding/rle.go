package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Code is any small palette id, such as a cell kind.
type Code interface {
	~uint8 | ~uint16
}

// EncodeRLE encodes a sequence of palette ids into base64(varint pairs).
// The pairs are (code, run_len) repeated.
func EncodeRLE[T Code](ids []T) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. limit bounds the code values accepted for T.
func DecodeRLE[T Code](b64 string, limit T) ([]T, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []T
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > uint64(limit) {
			return nil, fmt.Errorf("code too large: %d", b)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, T(b))
		}
	}
	return out, nil
}

// EncodeBits packs a flag layer as an RLE of 0/1 codes.
func EncodeBits(bits []bool) string {
	ids := make([]uint8, len(bits))
	for i, b := range bits {
		if b {
			ids[i] = 1
		}
	}
	return EncodeRLE(ids)
}

func DecodeBits(b64 string) ([]bool, error) {
	ids, err := DecodeRLE[uint8](b64, 1)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(ids))
	for i, v := range ids {
		out[i] = v == 1
	}
	return out, nil
}
