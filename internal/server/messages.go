package server

import (
	"net/http"
	"time"

	"github.com/tgardner/go-chatserver/internal/types"
)

// ClientMessage is the inbound wire format. The sender is always resolved
// from the authenticated connection that produced the message; a user id in
// the payload is never trusted. TempId is a client-generated correlation tag
// echoed back in the ack or error envelope.
type ClientMessage struct {
	TempId    string    `json:"temp_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Publish   *Publish  `json:"publish,omitempty"`

	client *Client
}

func (cm *ClientMessage) GetAccountId() int {
	if cm.client != nil {
		return cm.client.user.Id
	}
	return 0
}

type Publish struct {
	RoomId      string   `json:"room_id"`
	Content     string   `json:"content,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// ServerMessage is the envelope fanned out to connections. Exactly one of
// the payload fields is set; recipients switch on whichever is non-nil.
// Envelopes are immutable once constructed and shared by value across all
// recipients of a broadcast.
type ServerMessage struct {
	Timestamp  time.Time        `json:"timestamp"`
	Message    *types.Message   `json:"message,omitempty"`
	Ack        *Ack             `json:"ack,omitempty"`
	Response   *Response        `json:"response,omitempty"`
	Membership *MembershipEvent `json:"membership,omitempty"`
	Presence   *Presence        `json:"presence,omitempty"`
	Logout     *Logout          `json:"logout,omitempty"`
}

// Ack correlates a client's temp id with the sequence number the message
// was persisted under.
type Ack struct {
	TempId string `json:"temp_id"`
	RoomId string `json:"room_id"`
	SeqId  int64  `json:"seq_id"`
}

type Response struct {
	TempId       string         `json:"temp_id,omitempty"`
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type MembershipEvent struct {
	Kind     string `json:"kind"`
	RoomId   string `json:"room_id"`
	SeqId    int64  `json:"seq_id,omitempty"`
	Actor    int    `json:"actor"`
	Affected int    `json:"affected"`
}

type Presence struct {
	UserId int    `json:"user_id"`
	RoomId string `json:"room_id"`
	Online bool   `json:"online"`
}

type Logout struct {
	Reason string `json:"reason"`
}

func NewAck(tempId, roomId string, seqId int64) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Ack: &Ack{
			TempId: tempId,
			RoomId: roomId,
			SeqId:  seqId,
		},
	}
}

func NewForcedLogout(reason string) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Logout: &Logout{
			Reason: reason,
		},
	}
}

func NewPresence(userId int, roomId string, online bool) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Presence: &Presence{
			UserId: userId,
			RoomId: roomId,
			Online: online,
		},
	}
}

func NewMembershipEvent(kind, roomId string, seqId int64, actor, affected int) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Membership: &MembershipEvent{
			Kind:     kind,
			RoomId:   roomId,
			SeqId:    seqId,
			Actor:    actor,
			Affected: affected,
		},
	}
}

func NoErrOK(tempId string, data map[string]any) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Response: &Response{
			TempId:       tempId,
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrNotMember(tempId string) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Response: &Response{
			TempId:       tempId,
			ResponseCode: http.StatusForbidden,
			Error:        "not a member of room",
		},
	}
}

func ErrRoomNotFound(tempId string) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Response: &Response{
			TempId:       tempId,
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrPersistFailed(tempId string) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Response: &Response{
			TempId:       tempId,
			ResponseCode: http.StatusInternalServerError,
			Error:        "message could not be saved",
		},
	}
}

func ErrInvalidMessage(tempId string) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Response: &Response{
			TempId:       tempId,
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
