package swap

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// SigningKey holds the single key a swapper signs with. The secret bytes
// never leave the value: it can only report its public key and sign.
// Every formatting path prints the public key only. Safe for concurrent use.
type SigningKey struct {
	secret [ed25519.PrivateKeySize]byte
	public solana.PublicKey
}

// NewSigningKey validates 64 bytes of ed25519 key material (seed followed by
// public key) and copies them into a SigningKey. The caller may wipe b
// afterwards.
func NewSigningKey(b []byte) (*SigningKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(b))
	}
	pub := b[ed25519.SeedSize:]
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("%w: public half is not a curve point", ErrInvalidKey)
	}
	derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	defer clear(derived)
	if !bytes.Equal(derived[ed25519.SeedSize:], pub) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
	}

	k := &SigningKey{public: solana.PublicKeyFromBytes(pub)}
	copy(k.secret[:], b)
	return k, nil
}

// SigningKeyFromBase58 parses a base58 encoded 64-byte key, the format
// wallets export.
func SigningKeyFromBase58(s string) (*SigningKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer clear(b)
	return NewSigningKey(b)
}

// SigningKeyFromFile reads a keypair file as written by solana-keygen.
func SigningKeyFromFile(path string) (*SigningKey, error) {
	priv, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer clear(priv)
	return NewSigningKey(priv)
}

// PublicKey returns the key's address.
func (k *SigningKey) PublicKey() solana.PublicKey {
	return k.public
}

// Sign rebuilds a live private key from the stored seed, checks it still
// matches the public key, signs msg, and wipes the live key.
func (k *SigningKey) Sign(msg []byte) (solana.Signature, error) {
	priv := solana.PrivateKey(ed25519.NewKeyFromSeed(k.secret[:ed25519.SeedSize]))
	defer clear(priv)

	if !priv.PublicKey().Equals(k.public) {
		return solana.Signature{}, fmt.Errorf("%w: key material does not match %s", ErrInvalidKey, k.public)
	}
	sig, err := priv.Sign(msg)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return sig, nil
}

func (k *SigningKey) String() string {
	return "SigningKey(" + k.public.String() + ")"
}

func (k *SigningKey) GoString() string {
	return k.String()
}

// Format prints the public key for every verb so no format string can reach
// the secret bytes.
func (k *SigningKey) Format(f fmt.State, _ rune) {
	io.WriteString(f, k.String())
}

func (k *SigningKey) LogValue() slog.Value {
	return slog.GroupValue(slog.String("public_key", k.public.String()))
}
