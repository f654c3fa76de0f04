// Package pool owns the per-session context pools (metadata, chat
// history, active content) and the activation state machine, including
// the recency-based automatic eviction of toolcall output.
package pool

import "github.com/adalundhe/weft/core/object"

// DefaultRecentToolcalls is how many of the newest toolcalls the
// in-progress turn may keep active.
const DefaultRecentToolcalls = 5

// DefaultRecentCompletedTurns is how many completed turns keep their
// toolcall output active.
const DefaultRecentCompletedTurns = 3

// EvictionPolicy is the recency policy for automatic toolcall
// deactivation. It is a pure function over the ordered toolcall log
// and the current turn index, recomputed on every ingestion or
// assembly step rather than run by a background timer.
type EvictionPolicy struct {
	RecentToolcalls      int
	RecentCompletedTurns int
}

func DefaultEvictionPolicy() EvictionPolicy {
	return EvictionPolicy{
		RecentToolcalls:      DefaultRecentToolcalls,
		RecentCompletedTurns: DefaultRecentCompletedTurns,
	}
}

// Survivors returns the toolcall ids the policy keeps active. A
// toolcall survives when it belongs to the in-progress turn and is
// among the most recent RecentToolcalls overall, or when it belongs to
// one of the last RecentCompletedTurns completed turns. Pinned and
// manually activated toolcalls are exempted by the caller, not here.
func (p EvictionPolicy) Survivors(log []object.ToolcallLogItem, currentTurn int) map[string]bool {
	keep := make(map[string]bool)
	oldestRecent := len(log) - p.RecentToolcalls

	for i, item := range log {
		switch {
		case item.Turn == currentTurn && i >= oldestRecent:
			keep[item.ID] = true
		case item.Turn < currentTurn && item.Turn >= currentTurn-p.RecentCompletedTurns:
			keep[item.ID] = true
		}
	}
	return keep
}
