package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// Signer holds one private key and the digest algorithm applied before signing.
type Signer struct {
	alg     string
	hashAlg string
	ed      ed25519.PrivateKey
	dl      *mode3.PrivateKey
	pub     []byte
}

// NewEd25519 returns an Ed25519 signer for a 32-byte seed.
// hashAlg must be one of: sha256, sha512, sha3-256.
func NewEd25519(seed []byte, hashAlg string) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing: ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	if err := checkHashAlg(hashAlg); err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		alg:     AlgEd25519,
		hashAlg: hashAlg,
		ed:      priv,
		pub:     priv.Public().(ed25519.PublicKey),
	}, nil
}

// NewDilithium3 returns a post-quantum Dilithium3 signer for a 32-byte seed.
func NewDilithium3(seed []byte, hashAlg string) (*Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("signing: dilithium3 seed must be %d bytes", mode3.SeedSize)
	}
	if err := checkHashAlg(hashAlg); err != nil {
		return nil, err
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pk, sk := mode3.NewKeyFromSeed(&s)
	return newDilithium3(pk, sk, hashAlg)
}

// GenerateDilithium3 returns a Dilithium3 signer with a fresh key from rand.
func GenerateDilithium3(rand io.Reader, hashAlg string) (*Signer, error) {
	if err := checkHashAlg(hashAlg); err != nil {
		return nil, err
	}
	pk, sk, err := mode3.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return newDilithium3(pk, sk, hashAlg)
}

func newDilithium3(pk *mode3.PublicKey, sk *mode3.PrivateKey, hashAlg string) (*Signer, error) {
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Signer{alg: AlgDilithium3, hashAlg: hashAlg, dl: sk, pub: pub}, nil
}

func (s *Signer) Algorithm() string { return s.alg }
func (s *Signer) HashAlg() string   { return s.hashAlg }

// PublicKey returns the signer identity as "<alg>:<base64 public key>".
func (s *Signer) PublicKey() string {
	return s.alg + ":" + base64.StdEncoding.EncodeToString(s.pub)
}

// Sign returns the base64 signature over hash(message).
func (s *Signer) Sign(message []byte) (string, error) {
	digest, err := digestFor(s.hashAlg, message)
	if err != nil {
		return "", err
	}
	switch s.alg {
	case AlgEd25519:
		return base64.StdEncoding.EncodeToString(ed25519.Sign(s.ed, digest)), nil
	case AlgDilithium3:
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(s.dl, digest, sig)
		return base64.StdEncoding.EncodeToString(sig), nil
	default:
		return "", fmt.Errorf("signing: unsupported algorithm %q", s.alg)
	}
}

// DeriveSeed deterministically derives a label-specific 32-byte seed from a
// root seed, so one root can drive several signers.
func DeriveSeed(rootSeed []byte, label string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing: root seed must be %d bytes", ed25519.SeedSize)
	}
	if strings.TrimSpace(label) == "" {
		return nil, errors.New("signing: empty label")
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-sidecast-signing-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(label))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}

func checkHashAlg(hashAlg string) error {
	_, err := digestFor(hashAlg, nil)
	return err
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("signing: unsupported hash algorithm %q", hashAlg)
	}
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
