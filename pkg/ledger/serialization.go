package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores records as string-to-string maps. Scalars get their own hash
// field so they stay inspectable with HGET; list fields are JSON-encoded into
// a single field. Optional scalars are written as "" when unset.

// SwarmToHash converts a SwarmRegistry to Redis hash format.
func SwarmToHash(s *SwarmRegistry) map[string]interface{} {
	return map[string]interface{}{
		"authority":            s.Authority,
		"total_agents":         formatUint(s.TotalAgents),
		"active_coordinations": formatUint(s.ActiveCoordinations),
		"total_coordinations":  formatUint(s.TotalCoordinations),
		"initialized_at_ms":    formatInt(s.InitializedAtMs),
	}
}

// HashToSwarm converts a Redis hash to a SwarmRegistry.
func HashToSwarm(hash map[string]string) (*SwarmRegistry, error) {
	p := fieldParser{hash: hash}
	s := &SwarmRegistry{
		Authority:           hash["authority"],
		TotalAgents:         p.u64("total_agents"),
		ActiveCoordinations: p.u64("active_coordinations"),
		TotalCoordinations:  p.u64("total_coordinations"),
		InitializedAtMs:     p.i64("initialized_at_ms"),
	}
	return s, p.err
}

// AgentToHash converts an AgentRecord to Redis hash format.
// The capabilities list is JSON-encoded.
func AgentToHash(a *AgentRecord) (map[string]interface{}, error) {
	capabilitiesJSON, err := json.Marshal(capabilitiesOrEmpty(a.Capabilities))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	return map[string]interface{}{
		"agent_id":           a.AgentID,
		"agent_type":         string(a.AgentType),
		"capabilities":       string(capabilitiesJSON),
		"registered_at_ms":   formatInt(a.RegisteredAtMs),
		"last_active_ms":     formatInt(a.LastActiveMs),
		"active":             strconv.FormatBool(a.Active),
		"total_actions":      formatUint(a.TotalActions),
		"successful_actions": formatUint(a.SuccessfulActions),
		"reputation_score":   formatUint(uint64(a.ReputationScore)),
	}, nil
}

// HashToAgent converts a Redis hash to an AgentRecord.
func HashToAgent(hash map[string]string) (*AgentRecord, error) {
	p := fieldParser{hash: hash}

	var capabilities []Capability
	p.decodeJSON("capabilities", &capabilities)

	a := &AgentRecord{
		AgentID:           hash["agent_id"],
		AgentType:         AgentType(hash["agent_type"]),
		Capabilities:      capabilitiesOrEmpty(capabilities),
		RegisteredAtMs:    p.i64("registered_at_ms"),
		LastActiveMs:      p.i64("last_active_ms"),
		Active:            p.flag("active"),
		TotalActions:      p.u64("total_actions"),
		SuccessfulActions: p.u64("successful_actions"),
		ReputationScore:   p.u8("reputation_score"),
	}
	return a, p.err
}

// CoordinationToHash converts a Coordination to Redis hash format.
// Capability, participant and voter lists are JSON-encoded.
func CoordinationToHash(c *Coordination) (map[string]interface{}, error) {
	requiredJSON, err := json.Marshal(capabilitiesOrEmpty(c.RequiredCapabilities))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal required_capabilities: %w", err)
	}

	participantsJSON, err := json.Marshal(stringsOrEmpty(c.ParticipatingAgents))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal participating_agents: %w", err)
	}

	votersJSON, err := json.Marshal(stringsOrEmpty(c.Voters))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal voters: %w", err)
	}

	resultHash := ""
	if c.ResultHash != nil {
		resultHash = c.ResultHash.String()
	}

	return map[string]interface{}{
		"coordination_id":       formatUint(c.ID),
		"threat_id":             formatUint(c.ThreatID),
		"initiator":             c.Initiator,
		"required_capabilities": string(requiredJSON),
		"action_plan":           c.ActionPlan,
		"urgency":               string(c.Urgency),
		"status":                string(c.Status),
		"participating_agents":  string(participantsJSON),
		"voters":                string(votersJSON),
		"votes_for":             formatUint(uint64(c.VotesFor)),
		"votes_against":         formatUint(uint64(c.VotesAgainst)),
		"initiated_at_ms":       formatInt(c.InitiatedAtMs),
		"resolved_at_ms":        formatOptionalInt(c.ResolvedAtMs),
		"executed_at_ms":        formatOptionalInt(c.ExecutedAtMs),
		"result_hash":           resultHash,
		"closed_reason":         c.ClosedReason,
		"outcome_reported":      strconv.FormatBool(c.OutcomeReported),
	}, nil
}

// HashToCoordination converts a Redis hash to a Coordination.
func HashToCoordination(hash map[string]string) (*Coordination, error) {
	p := fieldParser{hash: hash}

	var required []Capability
	var participants, voters []string
	p.decodeJSON("required_capabilities", &required)
	p.decodeJSON("participating_agents", &participants)
	p.decodeJSON("voters", &voters)

	c := &Coordination{
		ID:                   p.u64("coordination_id"),
		ThreatID:             p.u64("threat_id"),
		Initiator:            hash["initiator"],
		RequiredCapabilities: capabilitiesOrEmpty(required),
		ActionPlan:           hash["action_plan"],
		Urgency:              Urgency(hash["urgency"]),
		Status:               CoordinationStatus(hash["status"]),
		ParticipatingAgents:  stringsOrEmpty(participants),
		Voters:               stringsOrEmpty(voters),
		VotesFor:             p.u8("votes_for"),
		VotesAgainst:         p.u8("votes_against"),
		InitiatedAtMs:        p.i64("initiated_at_ms"),
		ResolvedAtMs:         p.optI64("resolved_at_ms"),
		ExecutedAtMs:         p.optI64("executed_at_ms"),
		ClosedReason:         hash["closed_reason"],
		OutcomeReported:      hash["outcome_reported"] == "true",
	}

	if raw := hash["result_hash"]; raw != "" {
		h, err := ParseHash(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid result_hash field: %w", err)
		}
		c.ResultHash = &h
	}

	return c, p.err
}

// ThreatCounterToHash converts a ThreatCounter to Redis hash format.
func ThreatCounterToHash(tc *ThreatCounter) map[string]interface{} {
	return map[string]interface{}{
		"count":     formatUint(tc.Count),
		"authority": tc.Authority,
	}
}

// HashToThreatCounter converts a Redis hash to a ThreatCounter.
func HashToThreatCounter(hash map[string]string) (*ThreatCounter, error) {
	p := fieldParser{hash: hash}
	tc := &ThreatCounter{
		Count:     p.u64("count"),
		Authority: hash["authority"],
	}
	return tc, p.err
}

// ThreatToHash converts a Threat to Redis hash format.
func ThreatToHash(t *Threat) (map[string]interface{}, error) {
	confirmedJSON, err := json.Marshal(stringsOrEmpty(t.ConfirmedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal confirmed_by: %w", err)
	}

	falsePositiveJSON, err := json.Marshal(stringsOrEmpty(t.FalsePositiveVotes))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal false_positive_votes: %w", err)
	}

	return map[string]interface{}{
		"threat_id":            formatUint(t.ID),
		"threat_type":          string(t.ThreatType),
		"severity":             formatUint(uint64(t.Severity)),
		"target_address":       t.TargetAddress,
		"description":          t.Description,
		"evidence_hash":        t.EvidenceHash.String(),
		"detected_at_ms":       formatInt(t.DetectedAtMs),
		"detected_by":          t.DetectedBy,
		"status":               string(t.Status),
		"confirmed_by":         string(confirmedJSON),
		"false_positive_votes": string(falsePositiveJSON),
	}, nil
}

// HashToThreat converts a Redis hash to a Threat.
func HashToThreat(hash map[string]string) (*Threat, error) {
	p := fieldParser{hash: hash}

	var confirmed, falsePositive []string
	p.decodeJSON("confirmed_by", &confirmed)
	p.decodeJSON("false_positive_votes", &falsePositive)

	t := &Threat{
		ID:                 p.u64("threat_id"),
		ThreatType:         ThreatType(hash["threat_type"]),
		Severity:           p.u8("severity"),
		TargetAddress:      hash["target_address"],
		Description:        hash["description"],
		EvidenceHash:       p.fingerprint("evidence_hash"),
		DetectedAtMs:       p.i64("detected_at_ms"),
		DetectedBy:         hash["detected_by"],
		Status:             ThreatStatus(hash["status"]),
		ConfirmedBy:        stringsOrEmpty(confirmed),
		FalsePositiveVotes: stringsOrEmpty(falsePositive),
	}
	return t, p.err
}

// WatchlistToHash converts a WatchlistEntry to Redis hash format.
func WatchlistToHash(w *WatchlistEntry) map[string]interface{} {
	linked := ""
	if w.LinkedThreatID != nil {
		linked = formatUint(*w.LinkedThreatID)
	}

	return map[string]interface{}{
		"address":          w.Address,
		"reason":           w.Reason,
		"linked_threat_id": linked,
		"added_at_ms":      formatInt(w.AddedAtMs),
		"added_by":         w.AddedBy,
		"active":           strconv.FormatBool(w.Active),
	}
}

// HashToWatchlist converts a Redis hash to a WatchlistEntry.
func HashToWatchlist(hash map[string]string) (*WatchlistEntry, error) {
	p := fieldParser{hash: hash}
	w := &WatchlistEntry{
		Address:   hash["address"],
		Reason:    hash["reason"],
		AddedAtMs: p.i64("added_at_ms"),
		AddedBy:   hash["added_by"],
		Active:    p.flag("active"),
	}
	if hash["linked_threat_id"] != "" {
		linked := p.u64("linked_threat_id")
		w.LinkedThreatID = &linked
	}
	return w, p.err
}

// ReasoningToHash converts a ReasoningCommit to Redis hash format.
func ReasoningToHash(r *ReasoningCommit) map[string]interface{} {
	return map[string]interface{}{
		"agent_id":        r.AgentID,
		"threat_id":       formatUint(r.ThreatID),
		"reasoning_hash":  r.ReasoningHash.String(),
		"action_type":     string(r.ActionType),
		"committed_at_ms": formatInt(r.CommittedAtMs),
		"revealed":        strconv.FormatBool(r.Revealed),
		"revealed_at_ms":  formatOptionalInt(r.RevealedAtMs),
		"reasoning_text":  r.ReasoningText,
	}
}

// HashToReasoning converts a Redis hash to a ReasoningCommit.
func HashToReasoning(hash map[string]string) (*ReasoningCommit, error) {
	p := fieldParser{hash: hash}
	r := &ReasoningCommit{
		AgentID:       hash["agent_id"],
		ThreatID:      p.u64("threat_id"),
		ReasoningHash: p.fingerprint("reasoning_hash"),
		ActionType:    ActionType(hash["action_type"]),
		CommittedAtMs: p.i64("committed_at_ms"),
		Revealed:      p.flag("revealed"),
		RevealedAtMs:  p.optI64("revealed_at_ms"),
		ReasoningText: hash["reasoning_text"],
	}
	return r, p.err
}

// ReasoningStatsToHash converts ReasoningStats to Redis hash format.
func ReasoningStatsToHash(s *ReasoningStats) map[string]interface{} {
	return map[string]interface{}{
		"agent_id":       s.AgentID,
		"total_commits":  formatUint(s.TotalCommits),
		"total_reveals":  formatUint(s.TotalReveals),
		"accuracy_score": formatUint(uint64(s.AccuracyScore)),
	}
}

// HashToReasoningStats converts a Redis hash to ReasoningStats.
func HashToReasoningStats(hash map[string]string) (*ReasoningStats, error) {
	p := fieldParser{hash: hash}
	s := &ReasoningStats{
		AgentID:       hash["agent_id"],
		TotalCommits:  p.u64("total_commits"),
		TotalReveals:  p.u64("total_reveals"),
		AccuracyScore: p.u8("accuracy_score"),
	}
	return s, p.err
}

// fieldParser decodes hash fields and keeps the first error it hits,
// so callers can decode a whole record and check once.
type fieldParser struct {
	hash map[string]string
	err  error
}

func (p *fieldParser) fail(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s field: %w", field, err)
	}
}

func (p *fieldParser) u64(field string) uint64 {
	v, err := strconv.ParseUint(p.hash[field], 10, 64)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *fieldParser) u8(field string) uint8 {
	v, err := strconv.ParseUint(p.hash[field], 10, 8)
	if err != nil {
		p.fail(field, err)
	}
	return uint8(v)
}

func (p *fieldParser) i64(field string) int64 {
	v, err := strconv.ParseInt(p.hash[field], 10, 64)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *fieldParser) optI64(field string) int64 {
	if p.hash[field] == "" {
		return 0
	}
	return p.i64(field)
}

func (p *fieldParser) flag(field string) bool {
	v, err := strconv.ParseBool(p.hash[field])
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *fieldParser) fingerprint(field string) Hash {
	h, err := ParseHash(p.hash[field])
	if err != nil {
		p.fail(field, err)
	}
	return h
}

func (p *fieldParser) decodeJSON(field string, v interface{}) {
	raw := p.hash[field]
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		p.fail(field, err)
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatOptionalInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// Empty slices instead of nil keep JSON output and equality checks stable.
func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func capabilitiesOrEmpty(c []Capability) []Capability {
	if c == nil {
		return []Capability{}
	}
	return c
}
