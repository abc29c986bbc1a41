package swarm

import "github.com/dyluth/brock/pkg/ledger"

// Resolve applies the quorum rule to a tally.
//
// Quorum is relative to the joined set: once every participant has voted the
// coordination resolves, Approved on a strict majority for and Rejected
// otherwise. Ties reject. resolved is false while votes are outstanding.
func Resolve(votesFor, votesAgainst uint8, participants int) (status ledger.CoordinationStatus, resolved bool) {
	if participants == 0 || int(votesFor)+int(votesAgainst) < participants {
		return ledger.CoordinationStatusPending, false
	}
	if votesFor > votesAgainst {
		return ledger.CoordinationStatusApproved, true
	}
	return ledger.CoordinationStatusRejected, true
}

// tally records a vote on c and resolves it when quorum is reached.
// The caller has already checked membership, status and vote-once.
func tally(c *ledger.Coordination, voter string, approve bool, nowMs int64) (resolved bool) {
	c.Voters = append(c.Voters, voter)
	if approve {
		c.VotesFor++
	} else {
		c.VotesAgainst++
	}

	status, resolved := Resolve(c.VotesFor, c.VotesAgainst, len(c.ParticipatingAgents))
	if resolved {
		c.Status = status
		c.ResolvedAtMs = nowMs
	}
	return resolved
}
