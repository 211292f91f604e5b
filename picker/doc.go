// Package picker implements the selection policy of the Random Pick Server.
//
// A client sends a JSON array of options. The picker decodes it, draws one
// element uniformly at random and encodes that element back to JSON:
//
//	["rock","paper","scissors"]  ->  "paper"
//
// Elements are opaque. They are never unmarshaled into Go values, so the
// chosen element is returned as the same JSON value the client sent
// (whitespace aside).
//
// Usage:
//
//	p := picker.NewUniform()
//	out, err := picker.Select(p, payload)
//	switch {
//	case errors.Is(err, picker.ErrDecode):
//		// payload was not a JSON array
//	case errors.Is(err, picker.ErrEmptySelection):
//		// payload was []
//	}
//
// Randomness:
//
// Uniform draws from the process-wide math/rand/v2 source, which is safe for
// concurrent use and needs no seeding. Tests can inject their own IntN.
package picker
