package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	IsPresent    bool      `json:"is_present,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id         int       `json:"id"`
	Name       string    `json:"name"`
	ExternalId string    `json:"external_id"`
	SeqId      int64     `json:"seq_id"`
	OwnerId    int       `json:"owner_id"`
	Members    []User    `json:"members,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	SeqId       int64     `json:"seq_id"`
	RoomId      string    `json:"room_id"`
	UserId      int       `json:"user_id"`
	Kind        string    `json:"kind,omitempty"`
	Content     string    `json:"content,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
