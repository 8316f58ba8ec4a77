// Package resolver decides the winner between a local entity snapshot and a
// remote document for the same id. The policy is last-write-wins at entity
// granularity: whole payloads compete on their authoritative timestamps, no
// field-level merge.
package resolver

import (
	"time"

	"github.com/mkorchagin/finsync/internal/syncable"
)

// Outcome is the resolver's decision.
type Outcome int

const (
	// KeepLocal keeps the local payload; the entity stays dirty and will
	// be pushed again.
	KeepLocal Outcome = iota

	// KeepRemote applies the remote payload over the local entity.
	KeepRemote

	// TombstoneLocal keeps the local deletion; the tombstone stays dirty
	// and will be pushed again.
	TombstoneLocal

	// TombstoneRemote applies the remote deletion locally.
	TombstoneRemote
)

func (o Outcome) String() string {
	switch o {
	case KeepLocal:
		return "keepLocal"
	case KeepRemote:
		return "keepRemote"
	case TombstoneLocal:
		return "tombstoneLocal"
	case TombstoneRemote:
		return "tombstoneRemote"
	default:
		return "unknown"
	}
}

// Resolve compares local against remote and picks a winner. Pure function,
// no side effects, deterministic for equal inputs — the coordinator relies
// on that to make re-reconciling a pulled window idempotent.
//
// Tombstone timestamps compete directly against the other side's best
// timestamp; ties favor deletion so a stale write cannot resurrect data.
// Between two live payloads the strictly greater timestamp wins and exact
// ties favor the remote side, which was the last to be durably committed.
func Resolve(local syncable.Entity, remote syncable.Document) Outcome {
	m := local.SyncMeta()

	localTime := m.LastUpdated
	if m.IsDeleted && m.DeletedAt != nil {
		localTime = *m.DeletedAt
	}
	remoteTime := syncable.BestTimestamp(remote)

	localTomb := m.IsDeleted
	remoteTomb := syncable.IsTombstone(remote)

	switch {
	case localTomb && remoteTomb:
		// Both sides deleted; prefer the remote marker unless the
		// local one is strictly newer and still has to propagate.
		if localNewer(localTime, remoteTime) {
			return TombstoneLocal
		}
		return TombstoneRemote
	case remoteTomb:
		if atLeast(remoteTime, localTime) {
			return TombstoneRemote
		}
		return KeepLocal
	case localTomb:
		if atLeast(localTime, remoteTime) {
			return TombstoneLocal
		}
		return KeepRemote
	default:
		if localNewer(localTime, remoteTime) {
			return KeepLocal
		}
		return KeepRemote
	}
}

// localNewer is a strictly-after comparison.
func localNewer(local, remote time.Time) bool { return local.After(remote) }

// atLeast reports a >= b, the tie-favoring comparison used for tombstones.
func atLeast(a, b time.Time) bool { return !a.Before(b) }
