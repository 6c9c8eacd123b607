package signing

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ipfs/go-cid"

	"xdao.co/sidecast/storage"
)

var ErrSignatureInvalid = errors.New("signing: signature invalid")

// Verify checks a receipt against the public key it names.
func Verify(r storage.Receipt) error {
	id, err := cid.Decode(r.CID)
	if err != nil || !id.Defined() {
		return storage.ErrInvalidCID
	}
	if r.Size < 0 {
		return fmt.Errorf("signing: negative size %d", r.Size)
	}

	alg, enc, ok := strings.Cut(r.Signer, ":")
	if !ok {
		return fmt.Errorf("signing: invalid signer encoding")
	}
	if alg != r.Algorithm {
		return fmt.Errorf("signing: signer alg %q does not match algorithm %q", alg, r.Algorithm)
	}
	pub, err := decodeBase64(enc)
	if err != nil {
		return fmt.Errorf("signing: invalid signer base64: %w", err)
	}
	sig, err := decodeBase64(r.Signature)
	if err != nil {
		return fmt.Errorf("signing: invalid signature base64: %w", err)
	}
	digest, err := digestFor(r.HashAlg, receiptMessage(id.String(), r.Size))
	if err != nil {
		return err
	}

	switch r.Algorithm {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("signing: invalid ed25519 public key length")
		}
		if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return ErrSignatureInvalid
		}
		return nil
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("signing: invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return ErrSignatureInvalid
		}
		return nil
	default:
		return fmt.Errorf("signing: unsupported algorithm %q", r.Algorithm)
	}
}
