package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// EventType names a domain event appended to the outbox.
type EventType string

// Swarm and coordination events.
const (
	EventSwarmInitialized        EventType = "SwarmInitialized"
	EventAgentRegistered         EventType = "AgentRegistered"
	EventAgentDeactivated        EventType = "AgentDeactivated"
	EventCoordinationInitiated   EventType = "CoordinationInitiated"
	EventAgentJoinedCoordination EventType = "AgentJoinedCoordination"
	EventVoteCast                EventType = "VoteCast"
	EventCoordinationApproved    EventType = "CoordinationApproved"
	EventCoordinationRejected    EventType = "CoordinationRejected"
	EventCoordinationExecuted    EventType = "CoordinationExecuted"
	EventCoordinationClosed      EventType = "CoordinationClosed"
	EventReputationUpdated       EventType = "ReputationUpdated"
)

// Threat registry events.
const (
	EventThreatCounterInitialized EventType = "ThreatCounterInitialized"
	EventThreatRegistered         EventType = "ThreatRegistered"
	EventThreatConfirmed          EventType = "ThreatConfirmed"
	EventThreatEscalated          EventType = "ThreatEscalated"
	EventThreatStatusChanged      EventType = "ThreatStatusChanged"
	EventAddressWatchlisted       EventType = "AddressWatchlisted"
)

// Reasoning ledger events.
const (
	EventReasoningCommitted EventType = "ReasoningCommitted"
	EventReasoningRevealed  EventType = "ReasoningRevealed"
)

// Event is one entry of the outbox. StreamID is assigned by Redis on append
// and is empty for events received over Pub/Sub.
type Event struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	TimestampMs int64           `json:"timestamp_ms"`
	Payload     json.RawMessage `json:"payload"`
	StreamID    string          `json:"stream_id,omitempty"`
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Payloads for events that do not simply carry a full record.

// AgentDeactivatedPayload is emitted when an agent is marked inactive.
type AgentDeactivatedPayload struct {
	AgentID       string `json:"agent_id"`
	DeactivatedBy string `json:"deactivated_by"`
}

// AgentJoinedPayload is emitted when an agent joins a coordination.
type AgentJoinedPayload struct {
	CoordinationID   uint64 `json:"coordination_id"`
	AgentID          string `json:"agent_id"`
	ParticipantCount int    `json:"participant_count"`
}

// VoteCastPayload is emitted for every accepted vote.
type VoteCastPayload struct {
	CoordinationID uint64 `json:"coordination_id"`
	Voter          string `json:"voter"`
	Approve        bool   `json:"approve"`
	VotesFor       uint8  `json:"votes_for"`
	VotesAgainst   uint8  `json:"votes_against"`
}

// CoordinationResolvedPayload is emitted when the vote reaches quorum.
type CoordinationResolvedPayload struct {
	CoordinationID uint64             `json:"coordination_id"`
	Status         CoordinationStatus `json:"status"`
	VotesFor       uint8              `json:"votes_for"`
	VotesAgainst   uint8              `json:"votes_against"`
}

// CoordinationExecutedPayload is emitted when an approved coordination is executed.
type CoordinationExecutedPayload struct {
	CoordinationID uint64 `json:"coordination_id"`
	ExecutedBy     string `json:"executed_by"`
	ResultHash     Hash   `json:"result_hash"`
}

// CoordinationClosedPayload is emitted when a coordination is failed or cancelled.
type CoordinationClosedPayload struct {
	CoordinationID uint64             `json:"coordination_id"`
	Status         CoordinationStatus `json:"status"`
	Reason         string             `json:"reason,omitempty"`
	ClosedBy       string             `json:"closed_by"`
}

// ReputationUpdatedPayload is emitted for every reputation adjustment.
type ReputationUpdatedPayload struct {
	AgentID  string `json:"agent_id"`
	NewScore uint8  `json:"new_score"`
	Success  bool   `json:"success"`
}

// ThreatConfirmedPayload is emitted for every accepted confirmation.
type ThreatConfirmedPayload struct {
	ThreatID           uint64 `json:"threat_id"`
	ConfirmedBy        string `json:"confirmed_by"`
	TotalConfirmations int    `json:"total_confirmations"`
}

// ThreatStatusChangedPayload is emitted whenever a threat changes status.
type ThreatStatusChangedPayload struct {
	ThreatID  uint64       `json:"threat_id"`
	OldStatus ThreatStatus `json:"old_status"`
	NewStatus ThreatStatus `json:"new_status"`
	ChangedBy string       `json:"changed_by"`
}

// ReasoningRevealedPayload is emitted when committed reasoning is revealed.
type ReasoningRevealedPayload struct {
	AgentID  string `json:"agent_id"`
	ThreatID uint64 `json:"threat_id"`
	Verified bool   `json:"verified"`
}

// eventToStreamValues converts an event to XADD field values.
func eventToStreamValues(e *Event) map[string]interface{} {
	return map[string]interface{}{
		"id":           e.ID,
		"type":         string(e.Type),
		"timestamp_ms": strconv.FormatInt(e.TimestampMs, 10),
		"payload":      string(e.Payload),
	}
}

// streamMessageToEvent converts an XRANGE/XREAD entry back to an Event.
func streamMessageToEvent(msg redis.XMessage) (*Event, error) {
	field := func(name string) string {
		if v, ok := msg.Values[name].(string); ok {
			return v
		}
		return ""
	}

	ts, err := strconv.ParseInt(field("timestamp_ms"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp_ms in stream entry %s: %w", msg.ID, err)
	}

	payload := field("payload")
	if payload == "" {
		payload = "null"
	}

	return &Event{
		ID:          field("id"),
		Type:        EventType(field("type")),
		TimestampMs: ts,
		Payload:     json.RawMessage(payload),
		StreamID:    msg.ID,
	}, nil
}
