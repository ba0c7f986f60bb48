package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tgardner/go-chatserver/internal/config"
	"github.com/tgardner/go-chatserver/internal/database"
	"github.com/tgardner/go-chatserver/internal/server"
	"github.com/tgardner/go-chatserver/internal/stats"
	"github.com/tgardner/go-chatserver/internal/testutil"
	"github.com/tgardner/go-chatserver/internal/tokencache"
	"github.com/tgardner/go-chatserver/internal/types"
)

// newTestAppWithChatServer builds an app backed by a real chat server so
// handlers that sequence and broadcast membership events can be exercised.
func newTestAppWithChatServer(t *testing.T, db database.ChatRepository, tokens tokencache.TokenCache) *ChatApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)

	cs, err := server.NewChatServer(testutil.TestLogger(t), db, tokens, su)
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}

	return NewChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, db, tokens, su, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
}

func authenticatedRequest(method, target string, body []byte, userId int) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(WithUserId(req.Context(), userId))
}

func TestCreateRoomHandler(t *testing.T) {
	t.Run("successfully creates a room", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		room := database.Room{Id: 10, Name: "general", ExternalId: "R1", OwnerId: 1}
		mockRepo.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return p.Name == "general" && p.OwnerId == 1 && p.ExternalId != ""
		})).Return(room, nil).Once()
		mockRepo.On("CreateSubscription", 1, 10).Return(database.Subscription{}, nil).Once()

		app := newTestApp(t, mockRepo, &tokencache.MockTokenCache{})

		body, _ := json.Marshal(CreateRoomRequest{Name: "general"})
		rr := httptest.NewRecorder()
		app.createRoom(rr, authenticatedRequest(http.MethodPost, "/api/rooms", body, 1))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp types.Room
		err := json.NewDecoder(rr.Body).Decode(&resp)
		assert.NoError(t, err, "failed to decode response")
		assert.Equal(t, room.Name, resp.Name)
		assert.Equal(t, room.ExternalId, resp.ExternalId)
		assert.Equal(t, room.OwnerId, resp.OwnerId)
	})

	t.Run("unauthorized without a user id", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &tokencache.MockTokenCache{})

		body, _ := json.Marshal(CreateRoomRequest{Name: "general"})
		rr := httptest.NewRecorder()
		app.createRoom(rr, httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewBuffer(body)))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &tokencache.MockTokenCache{})

		body, _ := json.Marshal(CreateRoomRequest{})
		rr := httptest.NewRecorder()
		app.createRoom(rr, authenticatedRequest(http.MethodPost, "/api/rooms", body, 1))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestJoinRoomHandler(t *testing.T) {
	room := database.Room{Id: 10, Name: "general", ExternalId: "R1", OwnerId: 2}

	t.Run("successfully joins and records the event", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
		mockRepo.On("IsMember", 10, 1).Return(false).Once()
		mockRepo.On("CreateSubscription", 1, 10).Return(database.Subscription{}, nil).Once()

		// the join is sequenced and persisted as a history row
		mockRepo.On("HighestSeqId", 10).Return(int64(3), nil).Once()
		mockRepo.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
			return m.SeqId == 4 && m.Kind == database.KindJoin && m.RoomId == 10 && m.UserId == 1
		})).Return(nil).Once()
		mockRepo.On("MembersOf", 10).Return([]database.User{}, nil).Once()

		app := newTestAppWithChatServer(t, mockRepo, &tokencache.MockTokenCache{})

		body, _ := json.Marshal(RoomMemberRequest{RoomId: "R1"})
		rr := httptest.NewRecorder()
		app.joinRoom(rr, authenticatedRequest(http.MethodPost, "/api/rooms/join", body, 1))

		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("conflict when already a member", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
		mockRepo.On("IsMember", 10, 1).Return(true).Once()

		app := newTestApp(t, mockRepo, &tokencache.MockTokenCache{})

		body, _ := json.Marshal(RoomMemberRequest{RoomId: "R1"})
		rr := httptest.NewRecorder()
		app.joinRoom(rr, authenticatedRequest(http.MethodPost, "/api/rooms/join", body, 1))

		assert.Equal(t, http.StatusConflict, rr.Code)
		mockRepo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
	})
}

func TestKickMemberHandler(t *testing.T) {
	room := database.Room{Id: 10, Name: "general", ExternalId: "R1", OwnerId: 1}

	tcases := []struct {
		name         string
		userId       int
		body         RoomMemberRequest
		expectedCode int
	}{
		{
			name:         "non-owner cannot kick",
			userId:       2,
			body:         RoomMemberRequest{RoomId: "R1", UserId: 3},
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "owner cannot kick themselves",
			userId:       1,
			body:         RoomMemberRequest{RoomId: "R1", UserId: 1},
			expectedCode: http.StatusForbidden,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()

			app := newTestApp(t, mockRepo, &tokencache.MockTokenCache{})

			body, _ := json.Marshal(tc.body)
			rr := httptest.NewRecorder()
			app.kickMember(rr, authenticatedRequest(http.MethodPost, "/api/rooms/kick", body, tc.userId))

			assert.Equal(t, tc.expectedCode, rr.Code)
			mockRepo.AssertNotCalled(t, "DeleteSubscription", mock.Anything, mock.Anything)
		})
	}

	t.Run("owner kicks a member", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
		mockRepo.On("IsMember", 10, 3).Return(true).Once()
		mockRepo.On("HighestSeqId", 10).Return(int64(0), nil).Once()
		mockRepo.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
			return m.Kind == database.KindKick && m.UserId == 1
		})).Return(nil).Once()
		mockRepo.On("MembersOf", 10).Return([]database.User{}, nil).Once()
		// the event is recorded before the subscription is removed, so the
		// kicked member is still addressable when the broadcast fans out
		mockRepo.On("DeleteSubscription", 3, 10).Return(nil).Once()

		app := newTestAppWithChatServer(t, mockRepo, &tokencache.MockTokenCache{})

		body, _ := json.Marshal(RoomMemberRequest{RoomId: "R1", UserId: 3})
		rr := httptest.NewRecorder()
		app.kickMember(rr, authenticatedRequest(http.MethodPost, "/api/rooms/kick", body, 1))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestDeleteRoomHandler(t *testing.T) {
	room := database.Room{Id: 10, Name: "general", ExternalId: "R1", OwnerId: 1}

	t.Run("non-owner cannot disband", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()

		app := newTestApp(t, mockRepo, &tokencache.MockTokenCache{})

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, authenticatedRequest(http.MethodDelete, "/api/rooms?room_id=R1", nil, 2))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "DeleteRoom", mock.Anything)
	})

	t.Run("owner disbands the room", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
		mockRepo.On("HighestSeqId", 10).Return(int64(7), nil).Once()
		mockRepo.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
			return m.SeqId == 8 && m.Kind == database.KindDisband
		})).Return(nil).Once()
		mockRepo.On("MembersOf", 10).Return([]database.User{}, nil).Once()
		mockRepo.On("DeleteRoom", 10).Return(nil).Once()

		app := newTestAppWithChatServer(t, mockRepo, &tokencache.MockTokenCache{})

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, authenticatedRequest(http.MethodDelete, "/api/rooms?room_id=R1", nil, 1))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestTransferOwnershipHandler(t *testing.T) {
	room := database.Room{Id: 10, Name: "general", ExternalId: "R1", OwnerId: 1}

	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
	mockRepo.On("IsMember", 10, 2).Return(true).Once()
	mockRepo.On("TransferOwnership", 10, 2).Return(nil).Once()
	mockRepo.On("HighestSeqId", 10).Return(int64(0), nil).Once()
	mockRepo.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
		return m.Kind == database.KindOwnerTransfer
	})).Return(nil).Once()
	mockRepo.On("MembersOf", 10).Return([]database.User{}, nil).Once()

	app := newTestAppWithChatServer(t, mockRepo, &tokencache.MockTokenCache{})

	body, _ := json.Marshal(RoomMemberRequest{RoomId: "R1", UserId: 2})
	rr := httptest.NewRecorder()
	app.transferOwnership(rr, authenticatedRequest(http.MethodPost, "/api/rooms/transfer", body, 1))

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGetMessagesHandler(t *testing.T) {
	room := database.Room{Id: 10, Name: "general", ExternalId: "R1", OwnerId: 1}

	t.Run("returns history for a member", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		now := time.Now().UTC().Round(time.Millisecond)
		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
		mockRepo.On("IsMember", 10, 1).Return(true).Once()
		mockRepo.On("GetMessages", 10, int64(5), int64(0), 50).Return([]database.Message{
			{SeqId: 6, RoomId: 10, UserId: 2, Kind: database.KindMessage, Content: "hi", CreatedAt: now},
			{SeqId: 7, RoomId: 10, UserId: 2, Kind: database.KindLeave, CreatedAt: now},
		}, nil).Once()

		app := newTestApp(t, mockRepo, &tokencache.MockTokenCache{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authenticatedRequest(http.MethodGet, "/api/messages?room_id=R1&since=5&limit=50", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var msgs []types.Message
		err := json.NewDecoder(rr.Body).Decode(&msgs)
		assert.NoError(t, err, "failed to decode response")
		assert.Len(t, msgs, 2)
		assert.Equal(t, int64(6), msgs[0].SeqId)
		assert.Equal(t, "R1", msgs[0].RoomId, "expected the room's external id in the payload")
		assert.Equal(t, database.KindLeave, msgs[1].Kind)
	})

	t.Run("forbidden for non-members", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", "R1").Return(room, nil).Once()
		mockRepo.On("IsMember", 10, 9).Return(false).Once()

		app := newTestApp(t, mockRepo, &tokencache.MockTokenCache{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authenticatedRequest(http.MethodGet, "/api/messages?room_id=R1", nil, 9))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "GetMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestServeWsRejectsStaleToken(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockTokens := &tokencache.MockTokenCache{}
	defer mockTokens.AssertExpectations(t)
	// a newer login replaced the token this request carries
	mockTokens.On("CurrentToken", mock.Anything, 1).Return("newer-token", nil).Once()

	app := newTestAppWithChatServer(t, mockRepo, mockTokens)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req = req.WithContext(WithToken(WithUserId(req.Context(), 1), "older-token"))

	rr := httptest.NewRecorder()
	app.serveWs(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected a superseded token to be refused at the handshake")
	mockRepo.AssertNotCalled(t, "GetAccountById", mock.Anything)
}
