// Package identity provides the self-certifying identities that gate every
// ledger mutation.
//
// An identity is the lowercase hex encoding of an Ed25519 public key. A caller
// proves control of an identity by signing a short statement naming the
// operation and a timestamp:
//
//	"brock:" + operation + ":" + identity + ":" + issued_at_unix
//
// Because the identity is the public key, verification needs no directory.
package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultProofWindow is the maximum clock drift accepted between the time a
// proof was issued and the time it is verified.
const DefaultProofWindow = 5 * time.Minute

// ErrUnauthenticated wraps every proof verification failure.
var ErrUnauthenticated = errors.New("unauthenticated")

// Operation names a mutating ledger operation. It is bound into the proof so a
// proof for one operation cannot be replayed for another.
type Operation string

const (
	OpInitializeSwarm      Operation = "initialize_swarm"
	OpRegisterAgent        Operation = "register_agent"
	OpHeartbeat            Operation = "heartbeat"
	OpDeactivateAgent      Operation = "deactivate_agent"
	OpInitiateCoordination Operation = "initiate_coordination"
	OpJoinCoordination     Operation = "join_coordination"
	OpVoteOnCoordination   Operation = "vote_on_coordination"
	OpExecuteCoordination  Operation = "execute_coordination"
	OpCloseCoordination    Operation = "close_coordination"
	OpUpdateReputation     Operation = "update_reputation"
	OpReportOutcome        Operation = "report_outcome"

	OpInitializeThreatCounter Operation = "initialize_threat_counter"
	OpRegisterThreat          Operation = "register_threat"
	OpConfirmThreat           Operation = "confirm_threat"
	OpMarkFalsePositive       Operation = "mark_false_positive"
	OpUpdateThreatStatus      Operation = "update_threat_status"
	OpAddToWatchlist          Operation = "add_to_watchlist"

	OpCommitReasoning Operation = "commit_reasoning"
	OpRevealReasoning Operation = "reveal_reasoning"
)

// Caller is the authenticated principal of one operation.
type Caller struct {
	Identity string `json:"identity"`
	IssuedAt int64  `json:"issued_at"` // Unix seconds
	Proof    string `json:"proof"`     // hex Ed25519 signature
}

// Authorizer decides whether caller may perform op. Services receive one by
// injection; Verifier is the production implementation.
type Authorizer interface {
	Authorize(ctx context.Context, op Operation, caller Caller) error
}

// ProofMessage returns the statement a caller signs for op.
func ProofMessage(op Operation, identity string, issuedAt int64) []byte {
	return []byte("brock:" + string(op) + ":" + identity + ":" + strconv.FormatInt(issuedAt, 10))
}

// FromPublicKey returns the identity of a public key.
func FromPublicKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// ParsePublicKey decodes an identity back into its public key.
// Identities must be exactly 64 lowercase hex characters.
func ParsePublicKey(identity string) (ed25519.PublicKey, error) {
	if len(identity) != hex.EncodedLen(ed25519.PublicKeySize) {
		return nil, fmt.Errorf("identity must be %d hex characters, got %d", hex.EncodedLen(ed25519.PublicKeySize), len(identity))
	}
	raw, err := hex.DecodeString(identity)
	if err != nil {
		return nil, fmt.Errorf("invalid identity hex: %w", err)
	}
	if hex.EncodeToString(raw) != identity {
		return nil, fmt.Errorf("identity must be lowercase hex")
	}
	return ed25519.PublicKey(raw), nil
}

// ValidIdentity reports whether s is a well-formed identity.
func ValidIdentity(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

// Verifier authorizes callers by checking their Ed25519 proof.
type Verifier struct {
	window time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier. A non-positive window selects DefaultProofWindow.
func NewVerifier(window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultProofWindow
	}
	return &Verifier{window: window, now: time.Now}
}

// SetClock replaces the verifier's time source. Intended for tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Authorize checks that:
//  1. The identity is a well-formed public key.
//  2. IssuedAt is within the proof window of the current time.
//  3. The proof is a valid signature of ProofMessage by that key.
//
// Every failure wraps ErrUnauthenticated.
func (v *Verifier) Authorize(_ context.Context, op Operation, caller Caller) error {
	pub, err := ParsePublicKey(caller.Identity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	diff := math.Abs(float64(v.now().Unix() - caller.IssuedAt))
	if diff > v.window.Seconds() {
		return fmt.Errorf("%w: proof expired: %.0fs drift exceeds %v window", ErrUnauthenticated, diff, v.window)
	}

	sig, err := hex.DecodeString(caller.Proof)
	if err != nil {
		return fmt.Errorf("%w: invalid proof hex: %v", ErrUnauthenticated, err)
	}

	if !ed25519.Verify(pub, ProofMessage(op, caller.Identity, caller.IssuedAt), sig) {
		return fmt.Errorf("%w: ed25519 signature verification failed", ErrUnauthenticated)
	}

	return nil
}
