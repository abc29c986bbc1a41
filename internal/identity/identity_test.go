package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSignAndAuthorize(t *testing.T) {
	ctx := context.Background()
	signer, err := GenerateSigner()
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	signer.SetClock(fixedClock(now))
	verifier := NewVerifier(0)
	verifier.SetClock(fixedClock(now))

	t.Run("accepts a fresh proof", func(t *testing.T) {
		caller := signer.Sign(OpJoinCoordination)
		assert.Equal(t, signer.Identity(), caller.Identity)
		assert.NoError(t, verifier.Authorize(ctx, OpJoinCoordination, caller))
	})

	t.Run("rejects a proof for another operation", func(t *testing.T) {
		caller := signer.Sign(OpJoinCoordination)
		err := verifier.Authorize(ctx, OpExecuteCoordination, caller)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Contains(t, err.Error(), "signature verification failed")
	})

	t.Run("rejects a proof claiming another identity", func(t *testing.T) {
		other, err := GenerateSigner()
		require.NoError(t, err)

		caller := signer.Sign(OpVoteOnCoordination)
		caller.Identity = other.Identity()
		assert.ErrorIs(t, verifier.Authorize(ctx, OpVoteOnCoordination, caller), ErrUnauthenticated)
	})

	t.Run("rejects proofs outside the window", func(t *testing.T) {
		stale := signer.Sign(OpHeartbeat)
		verifier.SetClock(fixedClock(now.Add(DefaultProofWindow + time.Second)))
		defer verifier.SetClock(fixedClock(now))

		err := verifier.Authorize(ctx, OpHeartbeat, stale)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Contains(t, err.Error(), "proof expired")
	})

	t.Run("rejects malformed proofs", func(t *testing.T) {
		caller := signer.Sign(OpHeartbeat)
		caller.Proof = "not-hex"
		assert.ErrorIs(t, verifier.Authorize(ctx, OpHeartbeat, caller), ErrUnauthenticated)
	})

	t.Run("rejects malformed identities", func(t *testing.T) {
		caller := signer.Sign(OpHeartbeat)
		caller.Identity = strings.ToUpper(caller.Identity)
		assert.ErrorIs(t, verifier.Authorize(ctx, OpHeartbeat, caller), ErrUnauthenticated)

		caller.Identity = "abcd"
		assert.ErrorIs(t, verifier.Authorize(ctx, OpHeartbeat, caller), ErrUnauthenticated)
	})
}

func TestCustomWindow(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	signer.SetClock(fixedClock(now))
	verifier := NewVerifier(10 * time.Second)
	verifier.SetClock(fixedClock(now.Add(30 * time.Second)))

	err = verifier.Authorize(context.Background(), OpHeartbeat, signer.Sign(OpHeartbeat))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestParsePublicKey(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	pub, err := ParsePublicKey(signer.Identity())
	require.NoError(t, err)
	assert.Equal(t, signer.Identity(), FromPublicKey(pub))
	assert.True(t, ValidIdentity(signer.Identity()))

	assert.False(t, ValidIdentity(""))
	assert.False(t, ValidIdentity(strings.Repeat("g", 64)))
}

func TestKeyFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys", "agent.key")

	signer, err := GenerateSigner()
	require.NoError(t, err)
	require.NoError(t, signer.SaveKey(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadSigner(path)
	require.NoError(t, err)
	assert.Equal(t, signer.Identity(), loaded.Identity())

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := signer.SaveKey(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("rejects corrupt key files", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.key")
		require.NoError(t, os.WriteFile(bad, []byte("abcd\n"), 0o600))
		_, err := LoadSigner(bad)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "seed")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSigner(filepath.Join(dir, "missing.key"))
		assert.Error(t, err)
	})
}
