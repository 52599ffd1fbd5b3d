// Package encryption seals the persisted session credential at rest.
package encryption

// Sealer encrypts small values before they are written to disk.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// PlainSealer stores values unchanged. Selected with type "none".
type PlainSealer struct{}

var _ Sealer = PlainSealer{}

func (PlainSealer) Seal(plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (PlainSealer) Open(ciphertext []byte) ([]byte, error) {
	return append([]byte(nil), ciphertext...), nil
}
