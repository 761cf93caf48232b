package vars

// FirstNonZero picks the first value that was set, so a flag can fall back to
// a config value and then to a default.
func FirstNonZero[T comparable](values ...T) T {
	var zero T
	for _, value := range values {
		if value != zero {
			return value
		}
	}
	return zero
}
