package face

import (
	"bytes"
	"crypto/sha256"
	"errors"
)

// ErrInvalidSignature is returned by Sha256KeyChain.Verify on mismatch.
var ErrInvalidSignature = errors.New("face: invalid signature")

// Sha256KeyChain is a minimal, dependency-free KeyChain: "signing" is
// hashing, "verifying" is comparing hashes. Spec §1 lists real
// cryptographic signing/verification as an external collaborator; this
// stands in for it so the module runs end-to-end and so store's
// reconstruction path has something concrete to call Verify against.
type Sha256KeyChain struct{}

func NewSha256KeyChain() *Sha256KeyChain { return &Sha256KeyChain{} }

func (Sha256KeyChain) Sign(content []byte) ([]byte, error) {
	sum := sha256.Sum256(content)
	return sum[:], nil
}

func (Sha256KeyChain) Verify(content []byte, signature []byte) error {
	sum := sha256.Sum256(content)
	if !bytes.Equal(sum[:], signature) {
		return ErrInvalidSignature
	}
	return nil
}
