package reasoning

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const reasoningText = "Mint authority was transferred to a fresh wallet two blocks before the supply doubled."

func setupTestLedger(t *testing.T) (*Service, *ledger.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewService(swarm.NewRunner(client, identity.NewVerifier(0), zaptest.NewLogger(t), nil)), client, mr
}

func newSigner(t *testing.T) *identity.Signer {
	s, err := identity.GenerateSigner()
	require.NoError(t, err)
	return s
}

func TestHashReasoning(t *testing.T) {
	// sha256("abc")
	want, err := ledger.ParseHash("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	require.NoError(t, err)
	assert.Equal(t, want, HashReasoning("abc"))
}

func TestCommitReveal(t *testing.T) {
	svc, client, _ := setupTestLedger(t)
	ctx := context.Background()
	agent := newSigner(t)

	commit, err := svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 4, HashReasoning(reasoningText), ledger.ActionTypeBlock)
	require.NoError(t, err)
	assert.Equal(t, agent.Identity(), commit.AgentID)
	assert.False(t, commit.Revealed)

	_, err = svc.Verify(ctx, agent.Identity(), 4)
	assert.ErrorIs(t, err, swarm.ErrNotRevealed)

	revealed, err := svc.Reveal(ctx, agent.Sign(identity.OpRevealReasoning), 4, reasoningText)
	require.NoError(t, err)
	assert.True(t, revealed.Revealed)
	assert.Equal(t, reasoningText, revealed.ReasoningText)
	assert.NotZero(t, revealed.RevealedAtMs)

	ok, err := svc.Verify(ctx, agent.Identity(), 4)
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := svc.Stats(ctx, agent.Identity())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalCommits)
	assert.Equal(t, uint64(1), stats.TotalReveals)
	assert.Equal(t, uint8(InitialAccuracy), stats.AccuracyScore)

	events, err := client.ReadEvents(ctx, "-", "+", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventReasoningCommitted, events[0].Type)
	assert.Equal(t, ledger.EventReasoningRevealed, events[1].Type)

	_, err = svc.Reveal(ctx, agent.Sign(identity.OpRevealReasoning), 4, reasoningText)
	assert.ErrorIs(t, err, swarm.ErrAlreadyRevealed)
}

func TestCommitOncePerThreat(t *testing.T) {
	svc, _, _ := setupTestLedger(t)
	ctx := context.Background()
	agent := newSigner(t)

	_, err := svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 1, HashReasoning("first"), ledger.ActionTypeWarn)
	require.NoError(t, err)

	_, err = svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 1, HashReasoning("second"), ledger.ActionTypeWarn)
	assert.ErrorIs(t, err, swarm.ErrAlreadyCommitted)

	// Another threat, and another agent on the same threat, are independent
	_, err = svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 2, HashReasoning("second"), ledger.ActionTypeWarn)
	assert.NoError(t, err)
	other := newSigner(t)
	_, err = svc.Commit(ctx, other.Sign(identity.OpCommitReasoning), 1, HashReasoning("first"), ledger.ActionTypeMonitor)
	assert.NoError(t, err)

	stats, err := svc.Stats(ctx, agent.Identity())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalCommits)
}

func TestRevealRejections(t *testing.T) {
	svc, _, _ := setupTestLedger(t)
	ctx := context.Background()
	agent := newSigner(t)

	_, err := svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 9, HashReasoning(reasoningText), ledger.ActionTypeRecover)
	require.NoError(t, err)

	tests := []struct {
		name     string
		signer   *identity.Signer
		threatID uint64
		text     string
		want     error
	}{
		{"empty text", agent, 9, "", swarm.ErrInvalidReasoningLength},
		{"text too long", agent, 9, strings.Repeat("a", ledger.MaxReasoningLength+1), swarm.ErrInvalidReasoningLength},
		{"wrong text", agent, 9, "something else entirely", swarm.ErrHashMismatch},
		{"no commitment", agent, 10, reasoningText, swarm.ErrCommitNotFound},
		{"another agent", newSigner(t), 9, reasoningText, swarm.ErrCommitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reveal(ctx, tt.signer.Sign(identity.OpRevealReasoning), tt.threatID, tt.text)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	commit, err := svc.Record(ctx, agent.Identity(), 9)
	require.NoError(t, err)
	assert.False(t, commit.Revealed, "rejected reveals leave the commitment untouched")

	_, err = svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 11, HashReasoning("x"), "Panic")
	assert.ErrorIs(t, err, swarm.ErrInvalidActionType)
}

func TestVerifyDetectsTampering(t *testing.T) {
	svc, client, mr := setupTestLedger(t)
	ctx := context.Background()
	agent := newSigner(t)

	_, err := svc.Commit(ctx, agent.Sign(identity.OpCommitReasoning), 3, HashReasoning(reasoningText), ledger.ActionTypeCoordinate)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, agent.Sign(identity.OpRevealReasoning), 3, reasoningText)
	require.NoError(t, err)

	mr.HSet(ledger.ReasoningKey(client.InstanceName(), agent.Identity(), 3), "reasoning_text", "rewritten")

	ok, err := svc.Verify(ctx, agent.Identity(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatsForUnknownAgent(t *testing.T) {
	svc, _, _ := setupTestLedger(t)

	stats, err := svc.Stats(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", stats.AgentID)
	assert.Zero(t, stats.TotalCommits)
	assert.Equal(t, uint8(InitialAccuracy), stats.AccuracyScore)

	_, err = svc.Verify(context.Background(), "unknown", 1)
	assert.ErrorIs(t, err, swarm.ErrCommitNotFound)
}
