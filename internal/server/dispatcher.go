package server

import (
	"log"
	"strings"

	"github.com/tgardner/go-chatserver/internal/database"
	"github.com/tgardner/go-chatserver/internal/stats"
	"github.com/tgardner/go-chatserver/internal/types"
)

// Dispatcher drives an inbound message through membership check, sequence
// assignment, persistence, sender acknowledgment and fan-out. Sequencing
// and persistence happen inside the room's critical section; fan-out
// happens outside it so broadcasts never delay the next sequence
// assignment.
type Dispatcher struct {
	log   *log.Logger
	db    database.ChatRepository
	reg   *Registry
	seq   *Sequencer
	stats stats.StatsProvider
}

func NewDispatcher(logger *log.Logger, db database.ChatRepository, reg *Registry, seq *Sequencer, su stats.StatsProvider) *Dispatcher {
	return &Dispatcher{
		log:   logger,
		db:    db,
		reg:   reg,
		seq:   seq,
		stats: su,
	}
}

// HandlePublish processes one client-originated chat message. The sender
// always learns the fate of their message: an ack carrying the assigned
// sequence number, or an error response carrying their temp id. Other
// members only ever observe successfully persisted, sequenced messages.
func (d *Dispatcher) HandlePublish(c *Client, msg *ClientMessage) {
	pub := msg.Publish
	if pub == nil || (strings.TrimSpace(pub.Content) == "" && len(pub.Attachments) == 0) {
		c.queueMessage(ErrInvalidMessage(msg.TempId))
		return
	}

	room, err := d.db.GetRoomByExternalId(pub.RoomId)
	if err != nil {
		c.queueMessage(ErrRoomNotFound(msg.TempId))
		return
	}

	// Membership is re-validated on every send; a non-member is rejected
	// before any sequence number is consumed.
	if !d.db.IsMember(room.Id, c.user.Id) {
		d.log.Printf("rejected publish to %q from non-member %q", room.ExternalId, c.user.Username)
		c.queueMessage(ErrNotMember(msg.TempId))
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = Now()
	}

	seqId, err := d.seq.Do(room.Id, func(seqId int64) error {
		return d.db.CreateMessage(database.Message{
			SeqId:       seqId,
			RoomId:      room.Id,
			UserId:      c.user.Id,
			Kind:        database.KindMessage,
			Content:     pub.Content,
			Attachments: pub.Attachments,
			CreatedAt:   ts,
		})
	})
	if err != nil {
		d.log.Printf("persist message in %q: %v", room.ExternalId, err)
		d.stats.Incr(metricPersistFailures)
		c.queueMessage(ErrPersistFailed(msg.TempId))
		return
	}

	c.queueMessage(NewAck(msg.TempId, room.ExternalId, seqId))

	d.Broadcast(room, &ServerMessage{
		Timestamp: ts,
		Message: &types.Message{
			SeqId:       seqId,
			RoomId:      room.ExternalId,
			UserId:      c.user.Id,
			Kind:        database.KindMessage,
			Content:     pub.Content,
			Attachments: pub.Attachments,
			Timestamp:   ts,
		},
	})
	d.stats.Incr(metricMessagesDelivered)
}

// DispatchMembership records a membership event (join, leave, kick,
// owner transfer, disband) in the room's history under the next sequence
// number and broadcasts it to the room's live connections. Callers invoke
// it while the affected account is still a member so that account receives
// the envelope too.
func (d *Dispatcher) DispatchMembership(kind string, room database.Room, actorId, affectedId int) error {
	ts := Now()

	seqId, err := d.seq.Do(room.Id, func(seqId int64) error {
		return d.db.CreateMessage(database.Message{
			SeqId:     seqId,
			RoomId:    room.Id,
			UserId:    actorId,
			Kind:      kind,
			CreatedAt: ts,
		})
	})
	if err != nil {
		d.log.Printf("persist %s event in %q: %v", kind, room.ExternalId, err)
		d.stats.Incr(metricPersistFailures)
		return err
	}

	d.Broadcast(room, NewMembershipEvent(kind, room.ExternalId, seqId, actorId, affectedId))
	return nil
}

// Broadcast delivers an envelope to every live connection of the room's
// current members, including the sender's. A recipient whose connection
// cannot accept the envelope is skipped and scheduled for teardown; the
// broadcast as a whole still succeeds since durability was already
// established.
func (d *Dispatcher) Broadcast(room database.Room, sm *ServerMessage) {
	members, err := d.db.MembersOf(room.Id)
	if err != nil {
		d.log.Printf("MembersOf(%d): %v", room.Id, err)
		return
	}

	for _, rc := range d.reg.ConnectionsFor(memberIds(members)) {
		if !rc.queueMessage(sm) {
			d.log.Printf("dropping unresponsive connection for %q", rc.user.Username)
			rc.stopClient()
		}
	}
}
