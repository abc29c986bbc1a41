package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
)

// PollInterval is how often PollForResolution re-reads the coordination.
const PollInterval = 200 * time.Millisecond

// PollForResolution waits until a coordination leaves Pending and returns it.
// It re-reads the coordination whenever a resolving event is published and on
// every PollInterval tick, so a missed notification only delays the result.
// Returns an error if timeout occurs first.
func PollForResolution(ctx context.Context, client *ledger.Client, coordinationID uint64, timeout time.Duration) (*ledger.Coordination, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Subscribe before the first read so a resolution in between is not lost.
	sub, err := client.SubscribeEvents(ctx)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	check := func() (*ledger.Coordination, error) {
		coord, err := client.Coordination(ctx, coordinationID)
		if err != nil {
			if ledger.IsNotFound(err) {
				return nil, fmt.Errorf("coordination %d not found", coordinationID)
			}
			return nil, fmt.Errorf("failed to query coordination: %w", err)
		}
		if coord.Status != ledger.CoordinationStatusPending {
			return coord, nil
		}
		return nil, nil
	}

	if coord, err := check(); coord != nil || err != nil {
		return coord, err
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)
	events := sub.Events()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for coordination %d to resolve after %v", coordinationID, timeout)

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !resolves(e) {
				continue
			}

		case <-ticker.C:
		}

		if coord, err := check(); coord != nil || err != nil {
			return coord, err
		}
	}
}

// resolves reports whether e can move a coordination out of Pending.
func resolves(e *ledger.Event) bool {
	switch e.Type {
	case ledger.EventCoordinationApproved, ledger.EventCoordinationRejected, ledger.EventCoordinationClosed:
		return true
	}
	return false
}

// StreamOptions selects which outbox entries StreamEvents delivers.
type StreamOptions struct {
	Since  time.Time     // Zero replays the whole outbox
	Until  time.Time     // Zero means no upper bound; set it to stop following
	Follow bool          // Keep waiting for new entries after the replay
	Block  time.Duration // Wait per read while following; zero means 1s
	Types  map[ledger.EventType]bool
}

// StreamEvents replays outbox entries from opts.Since and, when following,
// keeps delivering new entries until ctx is cancelled.
func StreamEvents(ctx context.Context, client *ledger.Client, opts StreamOptions, formatter Formatter) error {
	start := "-"
	if !opts.Since.IsZero() {
		start = ledger.StreamIDAt(opts.Since)
	}

	end := "+"
	if !opts.Until.IsZero() {
		end = ledger.StreamIDBefore(opts.Until)
	}

	events, err := client.ReadEvents(ctx, start, end, 0)
	if err != nil {
		return err
	}

	lastID := "0"
	if start != "-" {
		lastID = start
	}
	for _, e := range events {
		if err := emit(e, opts, formatter); err != nil {
			return err
		}
		lastID = e.StreamID
	}

	if !opts.Follow || !opts.Until.IsZero() {
		return nil
	}

	block := opts.Block
	if block <= 0 {
		block = time.Second
	}

	for {
		events, err := client.ReadEventsAfter(ctx, lastID, block)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := emit(e, opts, formatter); err != nil {
				return err
			}
			lastID = e.StreamID
		}
	}
}

func emit(e *ledger.Event, opts StreamOptions, formatter Formatter) error {
	if len(opts.Types) > 0 && !opts.Types[e.Type] {
		return nil
	}
	return formatter.FormatEvent(e)
}
