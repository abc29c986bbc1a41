package swarm

import (
	"fmt"
	"testing"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		votesFor     uint8
		votesAgainst uint8
		participants int
		want         ledger.CoordinationStatus
		resolved     bool
	}{
		{"no participants", 0, 0, 0, ledger.CoordinationStatusPending, false},
		{"votes outstanding", 2, 0, 3, ledger.CoordinationStatusPending, false},
		{"majority for", 2, 1, 3, ledger.CoordinationStatusApproved, true},
		{"majority against", 1, 2, 3, ledger.CoordinationStatusRejected, true},
		{"tie", 2, 2, 4, ledger.CoordinationStatusRejected, true},
		{"single approval", 1, 0, 1, ledger.CoordinationStatusApproved, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resolved := Resolve(tt.votesFor, tt.votesAgainst, tt.participants)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.resolved, resolved)
		})
	}
}

// TestTallyProperties drives random vote sequences through tally and checks
// that the coordination resolves exactly when the last participant votes.
func TestTallyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, ledger.MaxParticipants).Draw(t, "participants")
		votes := rapid.SliceOfN(rapid.Bool(), n, n).Draw(t, "votes")

		c := &ledger.Coordination{Status: ledger.CoordinationStatusPending}
		for i := 0; i < n; i++ {
			c.ParticipatingAgents = append(c.ParticipatingAgents, fmt.Sprintf("agent-%d", i))
		}

		for i, approve := range votes {
			if c.Status != ledger.CoordinationStatusPending {
				t.Fatalf("resolved after %d of %d votes", i, n)
			}
			resolved := tally(c, c.ParticipatingAgents[i], approve, int64(i+1))
			if resolved != (i == n-1) {
				t.Fatalf("vote %d of %d: resolved=%v", i+1, n, resolved)
			}
			if c.TotalVotes() > len(c.ParticipatingAgents) {
				t.Fatalf("%d votes from %d participants", c.TotalVotes(), n)
			}
		}

		var approvals uint8
		for _, v := range votes {
			if v {
				approvals++
			}
		}
		want := ledger.CoordinationStatusRejected
		if int(approvals)*2 > n {
			want = ledger.CoordinationStatusApproved
		}
		if c.Status != want {
			t.Fatalf("%d of %d approvals resolved to %s, want %s", approvals, n, c.Status, want)
		}
		if c.ResolvedAtMs != int64(n) {
			t.Fatalf("resolved_at_ms = %d, want %d", c.ResolvedAtMs, n)
		}
	})
}

func TestReputationBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		score := rapid.Uint8Range(0, ledger.MaxReputation).Draw(t, "score")
		outcomes := rapid.SliceOf(rapid.Bool()).Draw(t, "outcomes")

		for _, success := range outcomes {
			next := NextReputation(score, success)
			if next > ledger.MaxReputation {
				t.Fatalf("score %d exceeds the maximum", next)
			}
			if success && next < score {
				t.Fatalf("success lowered %d to %d", score, next)
			}
			if !success && next > score {
				t.Fatalf("failure raised %d to %d", score, next)
			}
			score = next
		}
	})
}
