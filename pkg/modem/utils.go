package modem

// MeanPower returns the average energy per symbol, mean of |x|^2.
func MeanPower(symbols []complex128) float64 {
	if len(symbols) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range symbols {
		sum += real(s)*real(s) + imag(s)*imag(s)
	}
	return sum / float64(len(symbols))
}

func gray(k int) int {
	return k ^ (k >> 1)
}
