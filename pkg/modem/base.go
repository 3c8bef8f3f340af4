package modem

// Modem maps bits (one bit per uint8, values 0 or 1) to baseband symbols and back.
type Modem interface {
	Modulate(inputBits []uint8) ([]complex128, error)
	Demodulate(inputSymbols []complex128) []uint8
	BitsPerSymbol() int
}
