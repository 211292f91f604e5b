package picker

import (
	"encoding/json"
	"math/rand/v2"
)

// Picker chooses one element of a non-empty option list.
type Picker interface {
	Pick(opts Options) (json.RawMessage, error)
}

// Uniform picks every option with equal probability.
type Uniform struct {
	intN func(n int) int
}

// NewUniform returns a Uniform picker backed by the global math/rand/v2 source.
func NewUniform() *Uniform {
	return &Uniform{intN: rand.IntN}
}

// NewUniformWithSource returns a Uniform picker that draws indexes from intN.
// intN must return a value in [0, n).
func NewUniformWithSource(intN func(n int) int) *Uniform {
	if intN == nil {
		intN = rand.IntN
	}
	return &Uniform{intN: intN}
}

// Pick returns one element of opts, or ErrEmptySelection if there is none.
func (u *Uniform) Pick(opts Options) (json.RawMessage, error) {
	if len(opts) == 0 {
		return nil, ErrEmptySelection
	}
	return opts[u.intN(len(opts))], nil
}

// Select decodes payload, picks one option with p and encodes it.
func Select(p Picker, payload []byte) ([]byte, error) {
	opts, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	choice, err := p.Pick(opts)
	if err != nil {
		return nil, err
	}

	return Encode(choice)
}
