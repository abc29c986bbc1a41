package ledger

import (
	"encoding/hex"
	"fmt"
)

// Record size limits enforced by the ledger.
const (
	MaxAgentCapabilities    = 10
	MaxRequiredCapabilities = 5
	MaxActionPlanLength     = 1000
	MaxParticipants         = 10
	MaxCloseReasonLength    = 200
	InitialReputation       = 100
	MaxReputation           = 100
	SuccessReward           = 1
	FailurePenalty          = 5
)

// SwarmRegistry is the singleton holding the swarm-wide counters.
// ActiveCoordinations counts coordinations that are Pending or Approved.
type SwarmRegistry struct {
	Authority           string `json:"authority"`            // Identity that initialized the swarm
	TotalAgents         uint64 `json:"total_agents"`         // Registered agents (active or not)
	ActiveCoordinations uint64 `json:"active_coordinations"` // Coordinations in a non-terminal state
	TotalCoordinations  uint64 `json:"total_coordinations"`  // Monotonic; next coordination ID
	InitializedAtMs     int64  `json:"initialized_at_ms"`    // Unix milliseconds
}

// AgentRecord is one registered agent. Records are never deleted; an agent
// can only be marked inactive.
type AgentRecord struct {
	AgentID           string       `json:"agent_id"`
	AgentType         AgentType    `json:"agent_type"`
	Capabilities      []Capability `json:"capabilities"`
	RegisteredAtMs    int64        `json:"registered_at_ms"`
	LastActiveMs      int64        `json:"last_active_ms"`
	Active            bool         `json:"active"`
	TotalActions      uint64       `json:"total_actions"`
	SuccessfulActions uint64       `json:"successful_actions"`
	ReputationScore   uint8        `json:"reputation_score"` // 0-100
}

// HasCapability reports whether the agent declared the capability.
func (a *AgentRecord) HasCapability(c Capability) bool {
	for _, own := range a.Capabilities {
		if own == c {
			return true
		}
	}
	return false
}

// HasAnyCapability reports whether the agent declared at least one of required.
func (a *AgentRecord) HasAnyCapability(required []Capability) bool {
	for _, c := range required {
		if a.HasCapability(c) {
			return true
		}
	}
	return false
}

// Coordination is one proposed joint response to a threat.
type Coordination struct {
	ID                   uint64             `json:"coordination_id"`
	ThreatID             uint64             `json:"threat_id"`
	Initiator            string             `json:"initiator"`
	RequiredCapabilities []Capability       `json:"required_capabilities"`
	ActionPlan           string             `json:"action_plan"`
	Urgency              Urgency            `json:"urgency"`
	Status               CoordinationStatus `json:"status"`
	ParticipatingAgents  []string           `json:"participating_agents"`
	Voters               []string           `json:"voters"`
	VotesFor             uint8              `json:"votes_for"`
	VotesAgainst         uint8              `json:"votes_against"`
	InitiatedAtMs        int64              `json:"initiated_at_ms"`
	ResolvedAtMs         int64              `json:"resolved_at_ms,omitempty"`
	ExecutedAtMs         int64              `json:"executed_at_ms,omitempty"`
	ResultHash           *Hash              `json:"result_hash,omitempty"` // Set only when Executed
	ClosedReason         string             `json:"closed_reason,omitempty"`
	OutcomeReported      bool               `json:"outcome_reported"`
}

// IsParticipant reports whether agentID joined the coordination.
func (c *Coordination) IsParticipant(agentID string) bool {
	return contains(c.ParticipatingAgents, agentID)
}

// HasVoted reports whether agentID already cast its vote.
func (c *Coordination) HasVoted(agentID string) bool {
	return contains(c.Voters, agentID)
}

// TotalVotes returns votes_for + votes_against.
func (c *Coordination) TotalVotes() int {
	return int(c.VotesFor) + int(c.VotesAgainst)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AgentType is the closed taxonomy of agent roles.
type AgentType string

const (
	AgentTypeSentinel    AgentType = "Sentinel"    // Transaction monitoring
	AgentTypeScanner     AgentType = "Scanner"     // Contract analysis
	AgentTypeGuardian    AgentType = "Guardian"    // Threat defense
	AgentTypeOracle      AgentType = "Oracle"      // Risk prediction
	AgentTypeIntel       AgentType = "Intel"       // Knowledge base
	AgentTypeReporter    AgentType = "Reporter"    // Community alerts
	AgentTypeAuditor     AgentType = "Auditor"     // Reasoning verification
	AgentTypeHunter      AgentType = "Hunter"      // Actor tracking
	AgentTypeHealer      AgentType = "Healer"      // Fund recovery
	AgentTypeCoordinator AgentType = "Coordinator" // Swarm orchestration
)

// AgentTypes lists every agent type in declaration order.
var AgentTypes = []AgentType{
	AgentTypeSentinel, AgentTypeScanner, AgentTypeGuardian, AgentTypeOracle, AgentTypeIntel,
	AgentTypeReporter, AgentTypeAuditor, AgentTypeHunter, AgentTypeHealer, AgentTypeCoordinator,
}

// Validate checks if the AgentType is a valid enum value.
func (t AgentType) Validate() error {
	for _, known := range AgentTypes {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("unknown agent type: %q", t)
}

// Capability is a skill tag an agent declares; coordinations match on them.
type Capability string

const (
	CapabilityTransactionMonitoring Capability = "TransactionMonitoring"
	CapabilityContractAnalysis      Capability = "ContractAnalysis"
	CapabilityThreatDetection       Capability = "ThreatDetection"
	CapabilityRiskPrediction        Capability = "RiskPrediction"
	CapabilityKnowledgeManagement   Capability = "KnowledgeManagement"
	CapabilityCommunityAlerts       Capability = "CommunityAlerts"
	CapabilityReasoningVerification Capability = "ReasoningVerification"
	CapabilityActorTracking         Capability = "ActorTracking"
	CapabilityFundRecovery          Capability = "FundRecovery"
	CapabilitySwarmCoordination     Capability = "SwarmCoordination"
)

// Capabilities lists every capability tag in declaration order.
var Capabilities = []Capability{
	CapabilityTransactionMonitoring, CapabilityContractAnalysis, CapabilityThreatDetection,
	CapabilityRiskPrediction, CapabilityKnowledgeManagement, CapabilityCommunityAlerts,
	CapabilityReasoningVerification, CapabilityActorTracking, CapabilityFundRecovery,
	CapabilitySwarmCoordination,
}

// Validate checks if the Capability is a valid enum value.
func (c Capability) Validate() error {
	for _, known := range Capabilities {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("unknown capability: %q", c)
}

// Urgency is carried on a coordination; it does not alter the quorum rule.
type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// Validate checks if the Urgency is a valid enum value.
func (u Urgency) Validate() error {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return nil
	default:
		return fmt.Errorf("unknown urgency: %q", u)
	}
}

// CoordinationStatus is the lifecycle state of a coordination.
// Pending → Approved|Rejected, Approved → Executed; Pending|Approved may be
// closed administratively as Failed or Cancelled.
type CoordinationStatus string

const (
	// CoordinationStatusPending accepts joins and votes
	CoordinationStatusPending CoordinationStatus = "Pending"

	// CoordinationStatusApproved won the vote and awaits execution
	CoordinationStatusApproved CoordinationStatus = "Approved"

	// CoordinationStatusRejected lost (or tied) the vote
	CoordinationStatusRejected CoordinationStatus = "Rejected"

	// CoordinationStatusExecuted carries the result fingerprint
	CoordinationStatusExecuted CoordinationStatus = "Executed"

	// CoordinationStatusFailed was closed because the response could not be carried out
	CoordinationStatusFailed CoordinationStatus = "Failed"

	// CoordinationStatusCancelled was withdrawn before execution
	CoordinationStatusCancelled CoordinationStatus = "Cancelled"
)

// Validate checks if the CoordinationStatus is a valid enum value.
func (s CoordinationStatus) Validate() error {
	switch s {
	case CoordinationStatusPending, CoordinationStatusApproved, CoordinationStatusRejected,
		CoordinationStatusExecuted, CoordinationStatusFailed, CoordinationStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown coordination status: %q", s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s CoordinationStatus) IsTerminal() bool {
	switch s {
	case CoordinationStatusRejected, CoordinationStatusExecuted,
		CoordinationStatusFailed, CoordinationStatusCancelled:
		return true
	default:
		return false
	}
}

// Hash is a 32-byte fingerprint (result hashes, evidence hashes, reasoning hashes).
// It encodes as lowercase hex in JSON and in Redis hashes.
type Hash [32]byte

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash length: expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// String returns the hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
