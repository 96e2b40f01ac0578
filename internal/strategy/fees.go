package strategy

// FeeTable maps venue -> pair -> fractional taker fee.
type FeeTable map[string]map[string]float64

// Rate returns the fee rate for venue/pair and whether it is configured.
func (ft FeeTable) Rate(venue, pair string) (float64, bool) {
	if ft == nil {
		return 0, false
	}
	pairs, ok := ft[venue]
	if !ok {
		return 0, false
	}
	rate, ok := pairs[pair]
	return rate, ok
}

// Fee returns the absolute fee for trading volume at price.
func (ft FeeTable) Fee(venue, pair string, price, volume float64) (float64, bool) {
	rate, ok := ft.Rate(venue, pair)
	if !ok {
		return 0, false
	}
	return rate * price * volume, true
}
