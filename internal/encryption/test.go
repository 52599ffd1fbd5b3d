package encryption

import (
	"bytes"
	"fmt"
)

// testHeader is prepended by TestSealer so sealed output differs from the
// plaintext while staying deterministic.
var testHeader = []byte("TPSEAL\x00\x00")

// TestSealer is a deterministic sealer for tests. It needs no keys.
type TestSealer struct{}

var _ Sealer = (*TestSealer)(nil)

func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (s *TestSealer) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(plaintext))
	out = append(out, testHeader...)
	return append(out, plaintext...), nil
}

func (s *TestSealer) Open(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, testHeader) {
		return nil, fmt.Errorf("invalid test seal header")
	}
	return append([]byte(nil), ciphertext[len(testHeader):]...), nil
}
