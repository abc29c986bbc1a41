package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Signer holds a private key and produces signed Callers.
type Signer struct {
	priv     ed25519.PrivateKey
	identity string
	now      func() time.Time
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewSigner(priv), nil
}

// NewSigner wraps an existing private key.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{priv: priv, identity: FromPublicKey(pub), now: time.Now}
}

// SetClock replaces the signer's time source. Intended for tests.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// Identity returns the signer's identity key.
func (s *Signer) Identity() string {
	return s.identity
}

// Sign returns a Caller proving control of the identity for op.
func (s *Signer) Sign(op Operation) Caller {
	issuedAt := s.now().Unix()
	sig := ed25519.Sign(s.priv, ProofMessage(op, s.identity, issuedAt))
	return Caller{
		Identity: s.identity,
		IssuedAt: issuedAt,
		Proof:    hex.EncodeToString(sig),
	}
}

// SaveKey writes the private key seed as hex to path with owner-only
// permissions, creating parent directories as needed. Refuses to overwrite.
func (s *Signer) SaveKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file %s already exists", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	seed := hex.EncodeToString(s.priv.Seed()) + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadSigner reads a key file written by SaveKey.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid key file %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid key file %s: expected %d-byte seed, got %d", path, ed25519.SeedSize, len(seed))
	}

	return NewSigner(ed25519.NewKeyFromSeed(seed)), nil
}
