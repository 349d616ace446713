package conv

// AppendUint appends the decimal form of n.
func AppendUint(dst []byte, n uint64) []byte {
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, tmp[i:]...)
}

// AppendInt is AppendUint with a leading '-' for negative n.
func AppendInt(dst []byte, n int64) []byte {
	if n < 0 {
		// Negating through uint64 keeps math.MinInt64 intact.
		return AppendUint(append(dst, '-'), uint64(-(n+1))+1)
	}
	return AppendUint(dst, uint64(n))
}
