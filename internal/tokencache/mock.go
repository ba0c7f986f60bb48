package tokencache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockTokenCache struct {
	mock.Mock
}

func (m *MockTokenCache) CurrentToken(ctx context.Context, accountId int) (string, error) {
	args := m.Called(ctx, accountId)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCache) SetCurrentToken(ctx context.Context, accountId int, token string, ttl time.Duration) error {
	args := m.Called(ctx, accountId, token, ttl)
	return args.Error(0)
}

func (m *MockTokenCache) Revoke(ctx context.Context, accountId int) error {
	args := m.Called(ctx, accountId)
	return args.Error(0)
}
