// Package report renders ledger records for the CLI as aligned tables or
// line-delimited JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
)

// OutputFormat specifies how list output is rendered.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated free-text columns
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s (valid: default, jsonl)", s)
	}
}

// FormatAgents writes agents as a table and returns the number of rows.
func FormatAgents(w io.Writer, agents []*ledger.AgentRecord, instanceName string, now time.Time) int {
	if len(agents) == 0 {
		fmt.Fprintf(w, "No agents registered on instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Agents on instance '%s':\n\n", instanceName)
	fmt.Fprintf(w, "%-12s %-11s %-6s %-4s %-9s %-8s %s\n",
		"ID", "TYPE", "ACTIVE", "REP", "ACTIONS", "SEEN", "CAPABILITIES")
	fmt.Fprintf(w, "%-12s %-11s %-6s %-4s %-9s %-8s %s\n",
		"------------", "-----------", "------", "----", "---------", "--------", "------------------------------")

	for _, a := range agents {
		fmt.Fprintf(w, "%-12s %-11s %-6s %-4d %-9s %-8s %s\n",
			formatID(a.AgentID),
			a.AgentType,
			formatBool(a.Active),
			a.ReputationScore,
			fmt.Sprintf("%d/%d", a.SuccessfulActions, a.TotalActions),
			formatAge(a.LastActiveMs, now),
			formatCapabilities(a.Capabilities),
		)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(agents), plural(len(agents), "agent", "agents"))
	return len(agents)
}

// FormatCoordinations writes coordinations as a table and returns the number
// of rows.
func FormatCoordinations(w io.Writer, coords []*ledger.Coordination, instanceName string, now time.Time) int {
	if len(coords) == 0 {
		fmt.Fprintf(w, "No coordinations on instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Coordinations on instance '%s':\n\n", instanceName)
	fmt.Fprintf(w, "%-5s %-7s %-9s %-9s %-6s %-7s %-8s %s\n",
		"ID", "THREAT", "STATUS", "URGENCY", "AGENTS", "VOTES", "AGE", "PLAN")
	fmt.Fprintf(w, "%-5s %-7s %-9s %-9s %-6s %-7s %-8s %s\n",
		"-----", "-------", "---------", "---------", "------", "-------", "--------", "----------------------------------------")

	for _, c := range coords {
		fmt.Fprintf(w, "%-5d %-7d %-9s %-9s %-6d %-7s %-8s %s\n",
			c.ID,
			c.ThreatID,
			c.Status,
			c.Urgency,
			len(c.ParticipatingAgents),
			fmt.Sprintf("%d/%d", c.VotesFor, c.VotesAgainst),
			formatAge(c.InitiatedAtMs, now),
			truncate(c.ActionPlan, 40),
		)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(coords), plural(len(coords), "coordination", "coordinations"))
	return len(coords)
}

// FormatThreats writes threats as a table and returns the number of rows.
func FormatThreats(w io.Writer, threats []*ledger.Threat, instanceName string, now time.Time) int {
	if len(threats) == 0 {
		fmt.Fprintf(w, "No threats registered on instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Threats on instance '%s':\n\n", instanceName)
	fmt.Fprintf(w, "%-5s %-18s %-4s %-13s %-5s %-12s %-8s %s\n",
		"ID", "TYPE", "SEV", "STATUS", "CONF", "BY", "AGE", "DESCRIPTION")
	fmt.Fprintf(w, "%-5s %-18s %-4s %-13s %-5s %-12s %-8s %s\n",
		"-----", "------------------", "----", "-------------", "-----", "------------", "--------", "----------------------------------------")

	for _, t := range threats {
		fmt.Fprintf(w, "%-5d %-18s %-4d %-13s %-5d %-12s %-8s %s\n",
			t.ID,
			t.ThreatType,
			t.Severity,
			formatThreatStatus(t.Status),
			len(t.ConfirmedBy),
			formatID(t.DetectedBy),
			formatAge(t.DetectedAtMs, now),
			truncate(t.Description, 40),
		)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(threats), plural(len(threats), "threat", "threats"))
	return len(threats)
}

// FormatJSONL writes records as line-delimited JSON, one object per line.
func FormatJSONL[T any](w io.Writer, records []T) error {
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one record as pretty-printed JSON. Used by the
// show commands.
func FormatSingleJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID keeps enough of an identity to be resolvable as a short ID.
func formatID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatThreatStatus shortens the one status that overflows its column.
func formatThreatStatus(s ledger.ThreatStatus) string {
	if s == ledger.ThreatStatusUnderInvestigation {
		return "Investigating"
	}
	return string(s)
}

// formatCapabilities shows the first capability and how many follow.
func formatCapabilities(caps []ledger.Capability) string {
	switch len(caps) {
	case 0:
		return "-"
	case 1:
		return string(caps[0])
	default:
		return fmt.Sprintf("%s,+%d", caps[0], len(caps)-1)
	}
}

// truncate returns the first non-empty line of s cut to max characters.
// Empty text returns "-".
func truncate(s string, max int) string {
	var firstLine string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	if firstLine == "" {
		return "-"
	}

	if len(firstLine) > max {
		return firstLine[:max-3] + "..."
	}
	return firstLine
}

// formatAge renders a Unix millisecond timestamp relative to now, like "2m ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	if diff < 0 {
		diff = 0
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return singular
	}
	return many
}
