// Package resolver expands abbreviated agent identities typed on the command
// line into full 64-character identities.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/pkg/ledger"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// maxListed caps how many candidates an ambiguity message lists.
const maxListed = 10

// AgentLister is the part of the ledger client the resolver needs.
type AgentLister interface {
	Agent(ctx context.Context, agentID string) (*ledger.AgentRecord, error)
	AgentIDsWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// ResolveAgentID resolves a short identity prefix to a registered agent's
// full identity.
//
// A full identity is checked for existence and returned as-is. Shorter input
// must be at least MinShortIDLength lowercase hex characters and match exactly
// one registered agent.
func ResolveAgentID(ctx context.Context, client AgentLister, shortID string) (string, error) {
	shortID = strings.ToLower(shortID)

	if identity.ValidIdentity(shortID) {
		if _, err := client.Agent(ctx, shortID); err != nil {
			if ledger.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify agent existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}
	if strings.Trim(shortID, "0123456789abcdef") != "" {
		return "", fmt.Errorf("short ID must be hexadecimal: %s", shortID)
	}

	matches, err := client.AgentIDsWithPrefix(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for agent: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no agents matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agents found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple agents matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d agents", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching identities (up to 10, then
// "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: ambiguous short ID '%s' matches %d agents:\n", err.ShortID, len(err.Matches))

	for i, m := range err.Matches {
		if i == maxListed {
			fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-maxListed)
			break
		}
		fmt.Fprintf(&b, "  %s\n", m)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the agent.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
