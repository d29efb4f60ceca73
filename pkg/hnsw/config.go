package hnsw

import "math"

// Config holds the tunable parameters of an Index, fixed for its lifetime.
type Config struct {
	// Dimension is the fixed length every vector in the index must have.
	Dimension int
	// M is the per-level neighbor cap (>= 2). Level 0 caps at 2*M.
	M int
	// EfConstruction is the candidate-pool size used while inserting (>= M).
	EfConstruction int
	// EfSearch is the default candidate-pool size used while searching (>= 1).
	EfSearch int
	// ML is the level scale, typically 1/ln(M).
	ML float64
	// MaxElements is a soft pre-sizing hint; exceeding it is not an error.
	MaxElements int
}

// DefaultConfig returns a Config with the HNSW paper's commonly used
// defaults for the given dimension.
func DefaultConfig(dimension int) Config {
	const m = 16
	return Config{
		Dimension:      dimension,
		M:              m,
		EfConstruction: 200,
		EfSearch:       100,
		ML:             1.0 / math.Log(float64(m)),
		MaxElements:    0,
	}
}

// Validate reports ErrInvalidConfig if any parameter is out of range.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return ErrInvalidConfig
	}
	if c.M < 2 {
		return ErrInvalidConfig
	}
	if c.EfConstruction < c.M {
		return ErrInvalidConfig
	}
	if c.EfSearch < 1 {
		return ErrInvalidConfig
	}
	if c.ML <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
