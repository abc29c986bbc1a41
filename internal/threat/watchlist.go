package threat

import (
	"context"
	"fmt"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// AddToWatchlist flags an address. Each address can be added once; a linked
// threat, when given, must exist.
func (s *Service) AddToWatchlist(ctx context.Context, caller identity.Caller, address, reason string, linkedThreatID *uint64) (*ledger.WatchlistEntry, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if len(reason) > ledger.MaxWatchlistReasonLength {
		return nil, swarm.ErrReasonTooLong.With(
			fmt.Sprintf("%d bytes exceeds the limit of %d", len(reason), ledger.MaxWatchlistReasonLength))
	}

	keys := []string{ledger.WatchlistKey(s.instance, address)}
	if linkedThreatID != nil {
		keys = append(keys, ledger.ThreatKey(s.instance, *linkedThreatID))
	}

	var entry *ledger.WatchlistEntry
	err := s.runner.Run(ctx, identity.OpAddToWatchlist, caller, keys, func(tx *ledger.Tx) error {
		if _, err := tx.Watchlist(address); err == nil {
			return swarm.ErrAlreadyWatchlisted.With(address)
		} else if !ledger.IsNotFound(err) {
			return err
		}

		if linkedThreatID != nil {
			if _, err := requireThreat(tx, *linkedThreatID); err != nil {
				return err
			}
		}

		entry = &ledger.WatchlistEntry{
			Address:        address,
			Reason:         reason,
			LinkedThreatID: linkedThreatID,
			AddedAtMs:      tx.NowMs(),
			AddedBy:        caller.Identity,
			Active:         true,
		}
		tx.PutWatchlist(entry)
		return tx.Emit(ledger.EventAddressWatchlisted, entry)
	}, zap.String("address", address))
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CheckWatchlist reports whether address is actively watchlisted. Unknown
// addresses are simply not listed.
func (s *Service) CheckWatchlist(ctx context.Context, address string) (bool, error) {
	entry, err := s.client.Watchlist(ctx, address)
	if ledger.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.Active, nil
}

// WatchlistEntry returns the full entry for address, or nil when absent.
func (s *Service) WatchlistEntry(ctx context.Context, address string) (*ledger.WatchlistEntry, error) {
	entry, err := s.client.Watchlist(ctx, address)
	if ledger.IsNotFound(err) {
		return nil, nil
	}
	return entry, err
}
