package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockChatRepository) TransferOwnership(roomId, newOwnerId int) error {
	args := m.Called(roomId, newOwnerId)
	return args.Error(0)
}
func (m *MockChatRepository) CreateSubscription(accountId, roomId int) (Subscription, error) {
	args := m.Called(accountId, roomId)
	return args.Get(0).(Subscription), args.Error(1)
}
func (m *MockChatRepository) DeleteSubscription(accountId, roomId int) error {
	args := m.Called(accountId, roomId)
	return args.Error(0)
}
func (m *MockChatRepository) IsMember(roomId, accountId int) bool {
	args := m.Called(roomId, accountId)
	return args.Bool(0)
}
func (m *MockChatRepository) MembersOf(roomId int) ([]User, error) {
	args := m.Called(roomId)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) RoomsOf(accountId int) ([]Room, error) {
	args := m.Called(accountId)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockChatRepository) HighestSeqId(roomId int) (int64, error) {
	args := m.Called(roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockChatRepository) GetMessages(roomId int, since, before int64, limit int) ([]Message, error) {
	args := m.Called(roomId, since, before, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
