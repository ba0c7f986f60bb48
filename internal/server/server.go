package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tgardner/go-chatserver/internal/database"
	"github.com/tgardner/go-chatserver/internal/stats"
	"github.com/tgardner/go-chatserver/internal/tokencache"
	"github.com/tgardner/go-chatserver/internal/types"
)

const (
	metricActiveConnections = "ActiveConnections"
	metricMessagesDelivered = "MessagesDelivered"
	metricPersistFailures   = "PersistFailures"
	metricSessionsEvicted   = "SessionsEvicted"
)

// ErrStaleToken is returned when a structurally valid token is no longer
// the account's current session token.
var ErrStaleToken = errors.New("token superseded by a newer session")

// ChatServer owns the real-time subsystem: the connection registry, the
// per-room sequencer, presence tracking and message dispatch.
type ChatServer struct {
	log        *log.Logger
	db         database.ChatRepository
	tokens     tokencache.TokenCache
	stats      stats.StatsProvider
	registry   *Registry
	sequencer  *Sequencer
	presence   *PresenceTracker
	dispatcher *Dispatcher
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, tokens tokencache.TokenCache, su stats.StatsProvider) (*ChatServer, error) {
	registry := NewRegistry()
	sequencer := NewSequencer(db)

	cs := &ChatServer{
		log:        logger,
		db:         db,
		tokens:     tokens,
		stats:      su,
		registry:   registry,
		sequencer:  sequencer,
		presence:   NewPresenceTracker(registry, db, logger),
		dispatcher: NewDispatcher(logger, db, registry, sequencer, su),
	}

	su.RegisterMetric(metricActiveConnections)
	su.RegisterMetric(metricMessagesDelivered)
	su.RegisterMetric(metricPersistFailures)
	su.RegisterMetric(metricSessionsEvicted)

	return cs, nil
}

// Authenticate verifies that token is still the account's current session
// token. A token that validates structurally but has been superseded by a
// newer login is rejected with ErrStaleToken before any connection is
// created.
func (cs *ChatServer) Authenticate(ctx context.Context, accountId int, token string) error {
	current, err := cs.tokens.CurrentToken(ctx, accountId)
	if err != nil {
		return err
	}
	if current != token {
		return ErrStaleToken
	}

	return nil
}

// Register installs c as the account's active connection. A prior
// connection for the same account receives a forced-logout envelope and is
// closed; its own cleanup path then finds itself superseded and does
// nothing further.
func (cs *ChatServer) Register(c *Client) {
	if evicted := cs.registry.Install(c); evicted != nil {
		cs.log.Printf("evicting previous connection %s for %q", evicted.id, evicted.user.Username)
		evicted.queueMessage(NewForcedLogout("signed in from another connection"))
		evicted.stopClient()
		cs.stats.Incr(metricSessionsEvicted)
	} else {
		cs.stats.Incr(metricActiveConnections)
	}

	cs.presence.OnRegistryChange(c.user.Id)
	cs.sendWelcome(c)
}

// Unregister removes c if it is still the registered connection for its
// account; removal of a superseded connection is a no-op.
func (cs *ChatServer) Unregister(c *Client) {
	if cs.registry.Remove(c) {
		cs.stats.Decr(metricActiveConnections)
		cs.presence.OnRegistryChange(c.user.Id)
	}
	c.stopClient()
}

// NotifyMembership records and broadcasts a membership event through the
// dispatcher. Privileged actions (kick, disband, ownership transfer) each
// produce exactly one observable event by going through this path.
func (cs *ChatServer) NotifyMembership(kind string, room database.Room, actorId, affectedId int) error {
	return cs.dispatcher.DispatchMembership(kind, room, actorId, affectedId)
}

// sendWelcome queues the initial view for a freshly registered connection:
// the account's rooms with each member's current online state, read
// consistently from the live registry.
func (cs *ChatServer) sendWelcome(c *Client) {
	rooms, err := cs.db.RoomsOf(c.user.Id)
	if err != nil {
		cs.log.Printf("welcome: RoomsOf(%d): %v", c.user.Id, err)
		return
	}

	view := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		members, err := cs.db.MembersOf(room.Id)
		if err != nil {
			cs.log.Printf("welcome: MembersOf(%d): %v", room.Id, err)
			continue
		}

		online := cs.presence.CurrentOnlineSet(memberIds(members))
		users := make([]types.User, len(members))
		for i, m := range members {
			users[i] = types.User{
				Id:        m.Id,
				Username:  m.Username,
				IsPresent: online[m.Id],
			}
		}

		view = append(view, types.Room{
			Id:         room.Id,
			Name:       room.Name,
			ExternalId: room.ExternalId,
			SeqId:      room.SeqId,
			OwnerId:    room.OwnerId,
			Members:    users,
		})
	}

	c.queueMessage(NoErrOK("", map[string]any{"rooms": view}))
}

// Shutdown closes every live connection and waits for the registry to
// drain or the context to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")
	for _, c := range cs.registry.All() {
		c.stopClient()
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for cs.registry.Len() > 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
