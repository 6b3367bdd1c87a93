package dex

import (
	"errors"
	"unicode/utf16"
	"unicode/utf8"
)

var errBadLeb128 = errors.New("dex: malformed uleb128")

func appendUleb128(b []byte, v uint32) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// readUleb128 decodes at most five bytes from b and returns the value and the
// number of bytes consumed.
func readUleb128(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		if i >= len(b) {
			return 0, 0, errBadLeb128
		}
		v |= uint32(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, errBadLeb128
}

// appendMutf8 encodes s in modified UTF-8: NUL is two bytes and characters
// outside the BMP are written as surrogate pairs of three bytes each.
func appendMutf8(b []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			b = append(b, byte(r))
		case r < 0x800:
			b = append(b, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			b = append(b, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
		default:
			hi, lo := utf16.EncodeRune(r)
			b = appendMutf8Unit(b, hi)
			b = appendMutf8Unit(b, lo)
		}
	}
	return b
}

func appendMutf8Unit(b []byte, u rune) []byte {
	return append(b, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
}

// decodeMutf8 decodes a NUL-terminated modified UTF-8 string and returns the
// string and the number of bytes consumed including the terminator.
func decodeMutf8(b []byte) (string, int, error) {
	var units []uint16
	i := 0
	for {
		if i >= len(b) {
			return "", 0, errors.New("dex: unterminated string data")
		}
		c := b[i]
		switch {
		case c == 0:
			return string(utf16.Decode(units)), i + 1, nil
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) {
				return "", 0, errors.New("dex: truncated string data")
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) {
				return "", 0, errors.New("dex: truncated string data")
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", 0, errors.New("dex: malformed string data")
		}
	}
}

// utf16Len is the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// compareUTF16 orders strings by their UTF-16 code units, the order dex
// requires for string_ids.
func compareUTF16(a, b string) int {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			ua, ub := firstUnit(ra), firstUnit(rb)
			if ua != ub {
				if ua < ub {
					return -1
				}
				return 1
			}
			// Same high surrogate, the low surrogates decide.
			if ra < rb {
				return -1
			}
			return 1
		}
		a, b = a[na:], b[nb:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func firstUnit(r rune) rune {
	if r >= 0x10000 {
		hi, _ := utf16.EncodeRune(r)
		return hi
	}
	return r
}
