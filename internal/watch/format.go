package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
)

// Output formats accepted by NewFormatter.
const (
	FormatDefault = "default"
	FormatJSON    = "json"
)

// Formatter renders ledger events as they stream past.
type Formatter interface {
	FormatEvent(e *ledger.Event) error
}

// NewFormatter returns the formatter for an output format name.
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "", FormatDefault:
		return &defaultFormatter{writer: w}, nil
	case FormatJSON:
		return &jsonFormatter{encoder: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (must be 'default' or 'json')", format)
	}
}

// jsonFormatter writes one JSON object per line.
type jsonFormatter struct {
	encoder *json.Encoder
}

func (f *jsonFormatter) FormatEvent(e *ledger.Event) error {
	return f.encoder.Encode(e)
}

// defaultFormatter writes one human-readable line per event.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatEvent(e *ledger.Event) error {
	ts := time.UnixMilli(e.TimestampMs).UTC().Format("15:04:05")
	_, err := fmt.Fprintf(f.writer, "[%s] %s\n", ts, Describe(e))
	return err
}

// Describe summarizes an event in one line. Unknown event types fall back to
// the raw payload.
func Describe(e *ledger.Event) string {
	switch e.Type {
	case ledger.EventSwarmInitialized:
		var p ledger.SwarmRegistry
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🚀 Swarm initialized: authority=%s", Short(p.Authority))
		}
	case ledger.EventAgentRegistered:
		var p ledger.AgentRecord
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🤖 Agent registered: id=%s type=%s capabilities=%d", Short(p.AgentID), p.AgentType, len(p.Capabilities))
		}
	case ledger.EventAgentDeactivated:
		var p ledger.AgentDeactivatedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("💤 Agent deactivated: id=%s by=%s", Short(p.AgentID), Short(p.DeactivatedBy))
		}
	case ledger.EventCoordinationInitiated:
		var p ledger.Coordination
		if e.Decode(&p) == nil {
			return fmt.Sprintf("📣 Coordination #%d initiated: threat=%d urgency=%s", p.ID, p.ThreatID, p.Urgency)
		}
	case ledger.EventAgentJoinedCoordination:
		var p ledger.AgentJoinedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🤝 Agent %s joined coordination #%d (%d participants)", Short(p.AgentID), p.CoordinationID, p.ParticipantCount)
		}
	case ledger.EventVoteCast:
		var p ledger.VoteCastPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🗳️  Vote on coordination #%d: by=%s approve=%t (for=%d against=%d)",
				p.CoordinationID, Short(p.Voter), p.Approve, p.VotesFor, p.VotesAgainst)
		}
	case ledger.EventCoordinationApproved:
		var p ledger.CoordinationResolvedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("✅ Coordination #%d approved (for=%d against=%d)", p.CoordinationID, p.VotesFor, p.VotesAgainst)
		}
	case ledger.EventCoordinationRejected:
		var p ledger.CoordinationResolvedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("❌ Coordination #%d rejected (for=%d against=%d)", p.CoordinationID, p.VotesFor, p.VotesAgainst)
		}
	case ledger.EventCoordinationExecuted:
		var p ledger.CoordinationExecutedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("⚡ Coordination #%d executed: by=%s result=%s", p.CoordinationID, Short(p.ExecutedBy), Short(p.ResultHash.String()))
		}
	case ledger.EventCoordinationClosed:
		var p ledger.CoordinationClosedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🛑 Coordination #%d closed as %s: %s", p.CoordinationID, p.Status, p.Reason)
		}
	case ledger.EventReputationUpdated:
		var p ledger.ReputationUpdatedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("📈 Reputation of %s is now %d (success=%t)", Short(p.AgentID), p.NewScore, p.Success)
		}
	case ledger.EventThreatRegistered:
		var p ledger.Threat
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🚨 Threat #%d registered: type=%s severity=%d by=%s", p.ID, p.ThreatType, p.Severity, Short(p.DetectedBy))
		}
	case ledger.EventThreatConfirmed:
		var p ledger.ThreatConfirmedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🔎 Threat #%d confirmed by %s (%d total)", p.ThreatID, Short(p.ConfirmedBy), p.TotalConfirmations)
		}
	case ledger.EventThreatEscalated, ledger.EventThreatStatusChanged:
		var p ledger.ThreatStatusChangedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🔁 Threat #%d: %s → %s", p.ThreatID, p.OldStatus, p.NewStatus)
		}
	case ledger.EventAddressWatchlisted:
		var p ledger.WatchlistEntry
		if e.Decode(&p) == nil {
			return fmt.Sprintf("👁️  Address watchlisted: %s (%s)", p.Address, p.Reason)
		}
	case ledger.EventReasoningCommitted:
		var p ledger.ReasoningCommit
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🔒 Reasoning committed: agent=%s threat=%d action=%s", Short(p.AgentID), p.ThreatID, p.ActionType)
		}
	case ledger.EventReasoningRevealed:
		var p ledger.ReasoningRevealedPayload
		if e.Decode(&p) == nil {
			return fmt.Sprintf("🔓 Reasoning revealed: agent=%s threat=%d verified=%t", Short(p.AgentID), p.ThreatID, p.Verified)
		}
	}
	return fmt.Sprintf("%s %s", e.Type, string(e.Payload))
}

// Short abbreviates a 64-character identity or hash for display.
func Short(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
