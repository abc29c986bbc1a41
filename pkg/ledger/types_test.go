package ledger

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumValidation(t *testing.T) {
	t.Run("agent types", func(t *testing.T) {
		for _, at := range AgentTypes {
			assert.NoError(t, at.Validate())
		}
		assert.Len(t, AgentTypes, 10)
		assert.Error(t, AgentType("Janitor").Validate())
		assert.Error(t, AgentType("").Validate())
	})

	t.Run("capabilities", func(t *testing.T) {
		for _, c := range Capabilities {
			assert.NoError(t, c.Validate())
		}
		assert.Len(t, Capabilities, 10)
		assert.Error(t, Capability("Telepathy").Validate())
	})

	t.Run("urgency", func(t *testing.T) {
		for _, u := range []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical} {
			assert.NoError(t, u.Validate())
		}
		assert.Error(t, Urgency("Whenever").Validate())
	})

	t.Run("coordination status", func(t *testing.T) {
		assert.NoError(t, CoordinationStatusPending.Validate())
		assert.Error(t, CoordinationStatus("Paused").Validate())
	})

	t.Run("threat types and statuses", func(t *testing.T) {
		for _, tt := range ThreatTypes {
			assert.NoError(t, tt.Validate())
		}
		assert.Error(t, ThreatType("Meteor").Validate())
		assert.NoError(t, ThreatStatusEscalated.Validate())
		assert.Error(t, ThreatStatus("Gone").Validate())
	})

	t.Run("action types", func(t *testing.T) {
		assert.NoError(t, ActionTypeBlock.Validate())
		assert.Error(t, ActionType("Panic").Validate())
	})
}

func TestCoordinationStatusIsTerminal(t *testing.T) {
	assert.False(t, CoordinationStatusPending.IsTerminal())
	assert.False(t, CoordinationStatusApproved.IsTerminal())
	assert.True(t, CoordinationStatusRejected.IsTerminal())
	assert.True(t, CoordinationStatusExecuted.IsTerminal())
	assert.True(t, CoordinationStatusFailed.IsTerminal())
	assert.True(t, CoordinationStatusCancelled.IsTerminal())
}

func TestAgentCapabilityMatching(t *testing.T) {
	agent := &AgentRecord{
		Capabilities: []Capability{CapabilityThreatDetection, CapabilityFundRecovery},
	}

	assert.True(t, agent.HasCapability(CapabilityThreatDetection))
	assert.False(t, agent.HasCapability(CapabilityActorTracking))

	assert.True(t, agent.HasAnyCapability([]Capability{CapabilityActorTracking, CapabilityFundRecovery}))
	assert.False(t, agent.HasAnyCapability([]Capability{CapabilityActorTracking}))
	assert.False(t, agent.HasAnyCapability(nil))
}

func TestCoordinationMembership(t *testing.T) {
	c := &Coordination{
		ParticipatingAgents: []string{"a", "b"},
		Voters:              []string{"a"},
		VotesFor:            1,
	}

	assert.True(t, c.IsParticipant("a"))
	assert.False(t, c.IsParticipant("z"))
	assert.True(t, c.HasVoted("a"))
	assert.False(t, c.HasVoted("b"))
	assert.Equal(t, 1, c.TotalVotes())
}

func TestHash(t *testing.T) {
	t.Run("parse and format", func(t *testing.T) {
		raw := strings.Repeat("ab", 32)
		h, err := ParseHash(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, h.String())
		assert.False(t, h.IsZero())
		assert.True(t, Hash{}.IsZero())
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseHash("abcd")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "expected 32 bytes")
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParseHash(strings.Repeat("zz", 32))
		assert.Error(t, err)
	})

	t.Run("json encodes as hex string", func(t *testing.T) {
		var h Hash
		h[0] = 0xff
		data, err := json.Marshal(h)
		require.NoError(t, err)
		assert.Equal(t, `"ff`+strings.Repeat("00", 31)+`"`, string(data))

		var decoded Hash
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, h, decoded)
	})
}
