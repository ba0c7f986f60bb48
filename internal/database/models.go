package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id         int
	Name       string
	ExternalId string
	SeqId      int64
	OwnerId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Subscription struct {
	Id        int
	AccountId int
	Username  string
	RoomId    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message kinds persisted in history. Chat messages carry content and
// attachments; the event kinds record membership changes so clients can
// replay them in order with the surrounding messages.
const (
	KindMessage       = "message"
	KindJoin          = "join"
	KindLeave         = "leave"
	KindKick          = "kick"
	KindOwnerTransfer = "owner_transfer"
	KindDisband       = "disband"
)

type Message struct {
	Id          int
	SeqId       int64
	RoomId      int
	UserId      int
	Kind        string
	Content     string
	Attachments []string
	CreatedAt   time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name       string `json:"name"`
	OwnerId    int    `json:"-"`
	ExternalId string `json:"external_id"`
}
