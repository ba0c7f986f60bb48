package server

import (
	"log"
	"sync"

	"github.com/tgardner/go-chatserver/internal/database"
)

// PresenceTracker derives online/offline state from registry occupancy.
// There is no independent presence store: the tracked map only exists to
// detect transitions so each flip emits exactly one presence envelope per
// affected room.
type PresenceTracker struct {
	mu     sync.Mutex
	online map[int]bool
	reg    *Registry
	db     database.ChatRepository
	log    *log.Logger
}

func NewPresenceTracker(reg *Registry, db database.ChatRepository, logger *log.Logger) *PresenceTracker {
	return &PresenceTracker{
		online: make(map[int]bool),
		reg:    reg,
		db:     db,
		log:    logger,
	}
}

// OnRegistryChange recomputes the account's online state from the registry
// and, if it flipped, announces the change to every room the account
// belongs to. A connection replaced by a newer one for the same account
// does not flip the state and emits nothing.
func (p *PresenceTracker) OnRegistryChange(accountId int) {
	p.mu.Lock()
	now := p.reg.Online(accountId)
	was := p.online[accountId]
	if was == now {
		p.mu.Unlock()
		return
	}
	if now {
		p.online[accountId] = true
	} else {
		delete(p.online, accountId)
	}
	p.mu.Unlock()

	rooms, err := p.db.RoomsOf(accountId)
	if err != nil {
		p.log.Printf("presence: RoomsOf(%d): %v", accountId, err)
		return
	}

	for _, room := range rooms {
		members, err := p.db.MembersOf(room.Id)
		if err != nil {
			p.log.Printf("presence: MembersOf(%d): %v", room.Id, err)
			continue
		}

		msg := NewPresence(accountId, room.ExternalId, now)
		for _, c := range p.reg.ConnectionsFor(memberIds(members)) {
			if c.user.Id == accountId {
				continue
			}
			c.queueMessage(msg)
		}
	}
}

// CurrentOnlineSet reports which of the given members currently hold a live
// connection. It reads the registry directly so the answer is consistent
// with the live state at the moment of the call.
func (p *PresenceTracker) CurrentOnlineSet(accountIds []int) map[int]bool {
	online := make(map[int]bool)
	for _, id := range accountIds {
		if p.reg.Online(id) {
			online[id] = true
		}
	}

	return online
}

func memberIds(members []database.User) []int {
	ids := make([]int, len(members))
	for i, m := range members {
		ids[i] = m.Id
	}
	return ids
}
