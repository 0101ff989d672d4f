package pricing

// ClampQuantity bounds a requested quantity to [1, stock]. A product with no
// stock still clamps to 1; the add itself is rejected elsewhere.
func ClampQuantity(requested, stock int) int {
	upper := stock
	if upper < 1 {
		upper = 1
	}
	if requested > upper {
		requested = upper
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

// StepQuantity applies a +/- delta to current and clamps the result to stock.
func StepQuantity(current, delta, stock int) int {
	return ClampQuantity(current+delta, stock)
}
