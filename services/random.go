package services

import "math/rand"

// Random is the source of every game roll.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.Intn(n) }

// DefaultRandom draws from the goroutine-safe runtime generator.
var DefaultRandom Random = globalRandom{}
