package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"github.com/tgardner/go-chatserver/internal/database"
	"github.com/tgardner/go-chatserver/internal/server"
	"github.com/tgardner/go-chatserver/internal/types"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type RoomMemberRequest struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id,omitempty"`
}

func (s *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.CreateRoom(database.CreateRoomParams{
		Name:       req.Name,
		OwnerId:    userId,
		ExternalId: externalId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.CreateSubscription(userId, room.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Room{
		Id:         room.Id,
		Name:       room.Name,
		ExternalId: room.ExternalId,
		OwnerId:    room.OwnerId,
		SeqId:      room.SeqId,
	})
}

func (s *ChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.roomFromQuery(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(room.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members, err := s.db.MembersOf(room.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, len(members))
	for i, m := range members {
		users[i] = types.User{Id: m.Id, Username: m.Username}
	}

	s.writeJson(w, http.StatusOK, types.Room{
		Id:         room.Id,
		Name:       room.Name,
		ExternalId: room.ExternalId,
		OwnerId:    room.OwnerId,
		SeqId:      room.SeqId,
		Members:    users,
		CreatedAt:  room.CreatedAt,
		UpdatedAt:  room.UpdatedAt,
	})
}

// deleteRoom disbands a room: the disband event is sequenced, persisted and
// broadcast while the membership still exists, then the room row is
// removed.
func (s *ChatApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.roomFromQuery(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.NotifyMembership(database.KindDisband, room, userId, 0); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteRoom(room.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.roomFromBody(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if s.db.IsMember(room.Id, userId) {
		errResp := NewConflictError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.CreateSubscription(userId, room.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.NotifyMembership(database.KindJoin, room, userId, userId); err != nil {
		s.log.Printf("join event for room %q: %v", room.ExternalId, err)
	}

	w.WriteHeader(http.StatusCreated)
}

// leaveRoom emits the leave event before the subscription is removed so the
// departing member still receives the envelope.
func (s *ChatApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.roomFromBody(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(room.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.NotifyMembership(database.KindLeave, room, userId, userId); err != nil {
		s.log.Printf("leave event for room %q: %v", room.ExternalId, err)
	}

	if err := s.db.DeleteSubscription(userId, room.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatApp) kickMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RoomMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" || req.UserId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.lookupRoom(req.RoomId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.OwnerId != userId || req.UserId == userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(room.Id, req.UserId) {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.NotifyMembership(database.KindKick, room, userId, req.UserId); err != nil {
		s.log.Printf("kick event for room %q: %v", room.ExternalId, err)
	}

	if err := s.db.DeleteSubscription(req.UserId, room.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatApp) transferOwnership(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RoomMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" || req.UserId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.lookupRoom(req.RoomId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(room.Id, req.UserId) {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.TransferOwnership(room.Id, req.UserId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.NotifyMembership(database.KindOwnerTransfer, room, userId, req.UserId); err != nil {
		s.log.Printf("owner transfer event for room %q: %v", room.ExternalId, err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, errResp := s.roomFromQuery(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(room.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := s.db.GetMessages(room.Id, since, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = types.Message{
			SeqId:       m.SeqId,
			RoomId:      room.ExternalId,
			UserId:      m.UserId,
			Kind:        m.Kind,
			Content:     m.Content,
			Attachments: m.Attachments,
			Timestamp:   m.CreatedAt,
		}
	}

	s.writeJson(w, http.StatusOK, out)
}

// serveWs is the websocket handshake. Beyond signature validity the token
// must still be the account's current session token; a token superseded by
// a newer login is refused before any connection is created.
func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, ok := Token(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.Authenticate(r.Context(), userId, token); err != nil {
		s.log.Printf("refused handshake for %d: %v", userId, err)
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}, conn, s.cs, s.log)

	s.cs.Register(client)
	go client.Write()
	go client.Read()
}

func (s *ChatApp) lookupRoom(externalId string) (database.Room, *ApiError) {
	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, NewNotFoundError()
		}
		return database.Room{}, NewInternalServerError(err)
	}

	return room, nil
}

func (s *ChatApp) roomFromQuery(r *http.Request) (database.Room, *ApiError) {
	externalId := r.URL.Query().Get("room_id")
	if externalId == "" {
		return database.Room{}, NewBadRequestError()
	}

	return s.lookupRoom(externalId)
}

func (s *ChatApp) roomFromBody(r *http.Request) (database.Room, *ApiError) {
	var req RoomMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" {
		return database.Room{}, NewBadRequestError()
	}

	return s.lookupRoom(req.RoomId)
}
