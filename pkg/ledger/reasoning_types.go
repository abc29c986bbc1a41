package ledger

import "fmt"

// MaxReasoningLength bounds the revealed reasoning text.
const MaxReasoningLength = 2000

// ReasoningCommit binds an agent to its reasoning for a threat before it acts.
// The text is revealed later and must hash to ReasoningHash.
type ReasoningCommit struct {
	AgentID       string     `json:"agent_id"`
	ThreatID      uint64     `json:"threat_id"`
	ReasoningHash Hash       `json:"reasoning_hash"`
	ActionType    ActionType `json:"action_type"`
	CommittedAtMs int64      `json:"committed_at_ms"`
	Revealed      bool       `json:"revealed"`
	RevealedAtMs  int64      `json:"revealed_at_ms,omitempty"`
	ReasoningText string     `json:"reasoning_text,omitempty"`
}

// ReasoningStats aggregates an agent's commit-reveal history.
type ReasoningStats struct {
	AgentID       string `json:"agent_id"`
	TotalCommits  uint64 `json:"total_commits"`
	TotalReveals  uint64 `json:"total_reveals"`
	AccuracyScore uint8  `json:"accuracy_score"` // 0-100
}

// ActionType is the action an agent committed to take.
type ActionType string

const (
	ActionTypeIgnore     ActionType = "Ignore"
	ActionTypeMonitor    ActionType = "Monitor"
	ActionTypeWarn       ActionType = "Warn"
	ActionTypeBlock      ActionType = "Block"
	ActionTypeCoordinate ActionType = "Coordinate"
	ActionTypeRecover    ActionType = "Recover"
)

// Validate checks if the ActionType is a valid enum value.
func (a ActionType) Validate() error {
	switch a {
	case ActionTypeIgnore, ActionTypeMonitor, ActionTypeWarn,
		ActionTypeBlock, ActionTypeCoordinate, ActionTypeRecover:
		return nil
	default:
		return fmt.Errorf("unknown action type: %q", a)
	}
}
