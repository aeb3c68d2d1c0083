package codec

import (
	"certpass/pkg/dgcerrors"
)

// Base45 alphabet per draft-faltstrom-base45. Index is the symbol value.
const base45Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

var base45Values = func() [256]int16 {
	var table [256]int16
	for i := range table {
		table[i] = -1
	}
	for i, c := range base45Alphabet {
		table[c] = int16(i)
	}
	return table
}()

// base45Decode decodes big-endian base45 triplets: three symbols map to two
// bytes, a trailing pair maps to one byte. A trailing single symbol or a
// symbol outside the alphabet is malformed input.
func base45Decode(s string) ([]byte, error) {
	if len(s)%3 == 1 {
		return nil, dgcerrors.New(dgcerrors.CodeDecode, "invalid base45")
	}

	out := make([]byte, 0, len(s)/3*2+1)
	for i := 0; i < len(s); i += 3 {
		chunk := s[i:min(i+3, len(s))]

		var value int
		for j := len(chunk) - 1; j >= 0; j-- {
			v := base45Values[chunk[j]]
			if v < 0 {
				return nil, dgcerrors.New(dgcerrors.CodeDecode, "invalid base45")
			}
			value = value*45 + int(v)
		}

		if len(chunk) == 3 {
			if value > 0xFFFF {
				return nil, dgcerrors.New(dgcerrors.CodeDecode, "invalid base45")
			}
			out = append(out, byte(value>>8), byte(value))
		} else {
			if value > 0xFF {
				return nil, dgcerrors.New(dgcerrors.CodeDecode, "invalid base45")
			}
			out = append(out, byte(value))
		}
	}
	return out, nil
}
