package utils

// QrToken 由 qrsig 计算 ptqrtoken
func QrToken(qrSig string) int64 {
	if qrSig == "" {
		return 0
	}

	var hash int64
	for i := 0; i < len(qrSig); i++ {
		hash += (((hash << 5) & 0x7FFFFFFF) + int64(qrSig[i])) & 0x7FFFFFFF
		hash &= 0x7FFFFFFF
	}
	return hash & 0x7FFFFFFF
}
