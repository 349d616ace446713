package conv

const hexd = "0123456789ABCDEF"

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	return hexN(buf, uint64(n), 8)
}

// U16Hex writes 4-digit uppercase hex without 0x, zero-padded.
func U16Hex(buf []byte, n uint16) []byte {
	return hexN(buf, uint64(n), 4)
}

// U8Hex writes 2-digit uppercase hex without 0x, zero-padded.
func U8Hex(buf []byte, n uint8) []byte {
	return hexN(buf, uint64(n), 2)
}

func hexN(buf []byte, n uint64, digits int) []byte {
	if len(buf) < digits {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < digits; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// AppendHex appends "0x" and a zero-padded hex value of the given width.
func AppendHex(dst []byte, n uint32, digits int) []byte {
	var tmp [8]byte
	if digits > 8 {
		digits = 8
	}
	dst = append(dst, '0', 'x')
	return append(dst, hexN(tmp[:], uint64(n), digits)...)
}
