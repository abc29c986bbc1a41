//go:build integration

package swarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/testutil"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestConcurrentVotes races every participant's vote against a real Redis
// and checks that exactly one transaction resolves the coordination.
func TestConcurrentVotes(t *testing.T) {
	client := testutil.NewLedgerClient(t, "integration")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := NewService(NewRunner(client, identity.NewVerifier(0), zaptest.NewLogger(t), nil))
	authority, err := identity.GenerateSigner()
	require.NoError(t, err)
	_, err = svc.Initialize(ctx, authority.Sign(identity.OpInitializeSwarm))
	require.NoError(t, err)

	coord, err := svc.Initiate(ctx, authority.Sign(identity.OpInitiateCoordination), InitiateRequest{
		RequiredCapabilities: []ledger.Capability{ledger.CapabilityFundRecovery},
		ActionPlan:           "freeze bridge withdrawals",
		Urgency:              ledger.UrgencyCritical,
	})
	require.NoError(t, err)

	agents := make([]*identity.Signer, ledger.MaxParticipants)
	for i := range agents {
		agents[i], err = identity.GenerateSigner()
		require.NoError(t, err)
		_, err = svc.Register(ctx, agents[i].Sign(identity.OpRegisterAgent), ledger.AgentTypeGuardian,
			[]ledger.Capability{ledger.CapabilityFundRecovery})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *identity.Signer) {
			defer wg.Done()
			_, err := svc.Join(ctx, a.Sign(identity.OpJoinCoordination), coord.ID)
			assert.NoError(t, err)
		}(a)
	}
	wg.Wait()

	for i, a := range agents {
		wg.Add(1)
		go func(a *identity.Signer, approve bool) {
			defer wg.Done()
			_, err := svc.Vote(ctx, a.Sign(identity.OpVoteOnCoordination), coord.ID, approve)
			assert.NoError(t, err)
		}(a, i < 6)
	}
	wg.Wait()

	stored, err := svc.Coordination(ctx, coord.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CoordinationStatusApproved, stored.Status)
	assert.Equal(t, uint8(6), stored.VotesFor)
	assert.Equal(t, uint8(4), stored.VotesAgainst)
	assert.Len(t, stored.Voters, ledger.MaxParticipants)

	events, err := client.ReadEvents(ctx, "-", "+", 0)
	require.NoError(t, err)

	var votes, approvals int
	for _, e := range events {
		switch e.Type {
		case ledger.EventVoteCast:
			votes++
		case ledger.EventCoordinationApproved:
			approvals++
		}
	}
	assert.Equal(t, ledger.MaxParticipants, votes)
	assert.Equal(t, 1, approvals)
}
