package database

// ChatRepository is the relational boundary the real-time core depends on.
// The membership reads (IsMember, MembersOf, RoomsOf) are always fresh
// queries; the core never caches membership across messages.
type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	DeleteRoom(roomId int) error
	TransferOwnership(roomId, newOwnerId int) error
	CreateSubscription(accountId, roomId int) (Subscription, error)
	DeleteSubscription(accountId, roomId int) error
	IsMember(roomId, accountId int) bool
	MembersOf(roomId int) ([]User, error)
	RoomsOf(accountId int) ([]Room, error)
	CreateMessage(msg Message) error
	HighestSeqId(roomId int) (int64, error)
	GetMessages(roomId int, since, before int64, limit int) ([]Message, error)
}
