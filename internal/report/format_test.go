package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.UnixMilli(1_700_000_000_000)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "empty text",
			text:     "",
			expected: "-",
		},
		{
			name:     "short single line",
			text:     "block the drainer",
			expected: "block the drainer",
		},
		{
			name:     "exactly 40 chars",
			text:     strings.Repeat("a", 40),
			expected: strings.Repeat("a", 40),
		},
		{
			name:     "41 chars - should truncate",
			text:     strings.Repeat("a", 41),
			expected: strings.Repeat("a", 37) + "...",
		},
		{
			name:     "multi-line text - first line only",
			text:     "First line\nSecond line",
			expected: "First line",
		},
		{
			name:     "text with leading/trailing whitespace",
			text:     "  \n  pause the pool  \n  ",
			expected: "pause the pool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, truncate(tt.text, 40))
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		ms       int64
		expected string
	}{
		{name: "unset", ms: 0, expected: "-"},
		{name: "seconds", ms: now.Add(-30 * time.Second).UnixMilli(), expected: "30s ago"},
		{name: "minutes", ms: now.Add(-5 * time.Minute).UnixMilli(), expected: "5m ago"},
		{name: "hours", ms: now.Add(-3 * time.Hour).UnixMilli(), expected: "3h ago"},
		{name: "days", ms: now.Add(-50 * time.Hour).UnixMilli(), expected: "2d ago"},
		{name: "clock skew clamps to zero", ms: now.Add(time.Minute).UnixMilli(), expected: "0s ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatAge(tt.ms, now))
		})
	}
}

func TestFormatCapabilities(t *testing.T) {
	assert.Equal(t, "-", formatCapabilities(nil))
	assert.Equal(t, "ThreatDetection", formatCapabilities([]ledger.Capability{ledger.CapabilityThreatDetection}))
	assert.Equal(t, "ThreatDetection,+2", formatCapabilities([]ledger.Capability{
		ledger.CapabilityThreatDetection, ledger.CapabilityFundRecovery, ledger.CapabilityActorTracking,
	}))
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "-", formatID(""))
	assert.Equal(t, "abc", formatID("abc"))
	assert.Equal(t, "0123456789ab", formatID(strings.Repeat("0123456789abcdef", 4)))
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	_, err = ParseOutputFormat("xml")
	assert.Error(t, err)
}

func TestFormatAgents(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		var buf bytes.Buffer
		count := FormatAgents(&buf, nil, "test", now)
		assert.Equal(t, 0, count)
		assert.Contains(t, buf.String(), "No agents registered on instance 'test'")
	})

	t.Run("rows and count", func(t *testing.T) {
		agents := []*ledger.AgentRecord{
			{
				AgentID:           strings.Repeat("a", 64),
				AgentType:         ledger.AgentTypeSentinel,
				Capabilities:      []ledger.Capability{ledger.CapabilityTransactionMonitoring},
				LastActiveMs:      now.Add(-2 * time.Minute).UnixMilli(),
				Active:            true,
				TotalActions:      4,
				SuccessfulActions: 3,
				ReputationScore:   57,
			},
		}

		var buf bytes.Buffer
		count := FormatAgents(&buf, agents, "test", now)
		assert.Equal(t, 1, count)

		output := buf.String()
		assert.Contains(t, output, "aaaaaaaaaaaa ")
		assert.Contains(t, output, "Sentinel")
		assert.Contains(t, output, "3/4")
		assert.Contains(t, output, "2m ago")
		assert.Contains(t, output, "TransactionMonitoring")
		assert.Contains(t, output, "1 agent found")
	})
}

func TestFormatCoordinations(t *testing.T) {
	coords := []*ledger.Coordination{
		{ID: 0, ThreatID: 7, Status: ledger.CoordinationStatusPending, Urgency: ledger.UrgencyHigh, ActionPlan: "pause pool"},
		{ID: 1, ThreatID: 8, Status: ledger.CoordinationStatusApproved, Urgency: ledger.UrgencyLow, VotesFor: 2, VotesAgainst: 1,
			ParticipatingAgents: []string{"a", "b", "c"}},
	}

	var buf bytes.Buffer
	count := FormatCoordinations(&buf, coords, "test", now)
	assert.Equal(t, 2, count)

	output := buf.String()
	assert.Contains(t, output, "pause pool")
	assert.Contains(t, output, "Approved")
	assert.Contains(t, output, "2/1")
	assert.Contains(t, output, "2 coordinations found")
}

func TestFormatThreats(t *testing.T) {
	threats := []*ledger.Threat{
		{ID: 3, ThreatType: ledger.ThreatTypeHoneypot, Severity: 80, Status: ledger.ThreatStatusUnderInvestigation,
			Description: "sell tax 100%", DetectedBy: strings.Repeat("b", 64), ConfirmedBy: []string{"x", "y"}},
	}

	var buf bytes.Buffer
	count := FormatThreats(&buf, threats, "test", now)
	assert.Equal(t, 1, count)

	output := buf.String()
	assert.Contains(t, output, "Honeypot")
	assert.Contains(t, output, "Investigating")
	assert.Contains(t, output, "sell tax 100%")
	assert.Contains(t, output, "1 threat found")
}

func TestFormatJSONL(t *testing.T) {
	threats := []*ledger.Threat{
		{ID: 0, ThreatType: ledger.ThreatTypeRugPull},
		{ID: 1, ThreatType: ledger.ThreatTypeDrainAttack},
	}

	var buf bytes.Buffer
	require.NoError(t, FormatJSONL(&buf, threats))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var decoded ledger.Threat
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, uint64(1), decoded.ID)
	assert.Equal(t, ledger.ThreatTypeDrainAttack, decoded.ThreatType)
}

func TestFormatSingleJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatSingleJSON(&buf, &ledger.ThreatCounter{Count: 4, Authority: "auth"}))

	output := buf.String()
	assert.Contains(t, output, "\n  \"count\": 4")
	assert.True(t, strings.HasSuffix(output, "}\n"))
}
