package ledger

import "fmt"

// Threat registry limits.
const (
	MaxSeverity              = 100
	MaxDescriptionLength     = 500
	MaxThreatConfirmations   = 10
	MaxWatchlistReasonLength = 200
	EscalationConfirmations  = 3
	FalsePositiveVoteQuorum  = 3
)

// ThreatCounter is the singleton that allocates sequential threat IDs.
type ThreatCounter struct {
	Count     uint64 `json:"count"`
	Authority string `json:"authority"`
}

// Threat is a detection reported by an agent and confirmed by its peers.
type Threat struct {
	ID                 uint64       `json:"threat_id"`
	ThreatType         ThreatType   `json:"threat_type"`
	Severity           uint8        `json:"severity"` // 0-100
	TargetAddress      string       `json:"target_address,omitempty"`
	Description        string       `json:"description"`
	EvidenceHash       Hash         `json:"evidence_hash"`
	DetectedAtMs       int64        `json:"detected_at_ms"`
	DetectedBy         string       `json:"detected_by"`
	Status             ThreatStatus `json:"status"`
	ConfirmedBy        []string     `json:"confirmed_by"`
	FalsePositiveVotes []string     `json:"false_positive_votes"`
}

// IsConfirmedBy reports whether identity already confirmed the threat.
func (t *Threat) IsConfirmedBy(identity string) bool {
	return contains(t.ConfirmedBy, identity)
}

// HasFalsePositiveVote reports whether identity already voted false positive.
func (t *Threat) HasFalsePositiveVote(identity string) bool {
	return contains(t.FalsePositiveVotes, identity)
}

// WatchlistEntry flags an address as known-malicious.
type WatchlistEntry struct {
	Address        string  `json:"address"`
	Reason         string  `json:"reason"`
	LinkedThreatID *uint64 `json:"linked_threat_id,omitempty"`
	AddedAtMs      int64   `json:"added_at_ms"`
	AddedBy        string  `json:"added_by"`
	Active         bool    `json:"active"`
}

// ThreatType classifies a threat.
type ThreatType string

const (
	ThreatTypeRugPull            ThreatType = "RugPull"
	ThreatTypeHoneypot           ThreatType = "Honeypot"
	ThreatTypePhishingContract   ThreatType = "PhishingContract"
	ThreatTypeSuspiciousTransfer ThreatType = "SuspiciousTransfer"
	ThreatTypePriceManipulation  ThreatType = "PriceManipulation"
	ThreatTypeUnauthorizedMint   ThreatType = "UnauthorizedMint"
	ThreatTypeFlashLoanAttack    ThreatType = "FlashLoanAttack"
	ThreatTypeSandwichAttack     ThreatType = "SandwichAttack"
	ThreatTypeDrainAttack        ThreatType = "DrainAttack"
	ThreatTypeUnknown            ThreatType = "Unknown"
)

// ThreatTypes lists every threat type in declaration order.
var ThreatTypes = []ThreatType{
	ThreatTypeRugPull, ThreatTypeHoneypot, ThreatTypePhishingContract, ThreatTypeSuspiciousTransfer,
	ThreatTypePriceManipulation, ThreatTypeUnauthorizedMint, ThreatTypeFlashLoanAttack,
	ThreatTypeSandwichAttack, ThreatTypeDrainAttack, ThreatTypeUnknown,
}

// Validate checks if the ThreatType is a valid enum value.
func (t ThreatType) Validate() error {
	for _, known := range ThreatTypes {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("unknown threat type: %q", t)
}

// ThreatStatus is the lifecycle state of a threat.
type ThreatStatus string

const (
	ThreatStatusActive             ThreatStatus = "Active"
	ThreatStatusConfirmed          ThreatStatus = "Confirmed"
	ThreatStatusNeutralized        ThreatStatus = "Neutralized"
	ThreatStatusFalsePositive      ThreatStatus = "FalsePositive"
	ThreatStatusUnderInvestigation ThreatStatus = "UnderInvestigation"
	ThreatStatusEscalated          ThreatStatus = "Escalated"
)

// Validate checks if the ThreatStatus is a valid enum value.
func (s ThreatStatus) Validate() error {
	switch s {
	case ThreatStatusActive, ThreatStatusConfirmed, ThreatStatusNeutralized,
		ThreatStatusFalsePositive, ThreatStatusUnderInvestigation, ThreatStatusEscalated:
		return nil
	default:
		return fmt.Errorf("unknown threat status: %q", s)
	}
}
