//go:build race

package version

// isRace is true when the binary was built with the race detector enabled.
const isRace = true
