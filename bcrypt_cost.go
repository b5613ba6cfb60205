//go:build !race

package identity

// Cost 14 keeps a single hash around the 100ms mark on current hardware.
func passwordHashCost() int {
	return 14
}
