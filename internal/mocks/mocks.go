package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/api"
	"chat-client/internal/models"
)

type APIClientMock struct {
	mock.Mock
}

func (m *APIClientMock) Login(ctx context.Context, username, password string) (models.User, error) {
	args := m.Called(ctx, username, password)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *APIClientMock) ListDirectory(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *APIClientMock) ListMutualConsents(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *APIClientMock) ListRequests(ctx context.Context) ([]models.ChatRequest, error) {
	args := m.Called(ctx)
	var requests []models.ChatRequest
	if val := args.Get(0); val != nil {
		requests = val.([]models.ChatRequest)
	}
	return requests, args.Error(1)
}

func (m *APIClientMock) CreateRequest(ctx context.Context, receiverID int) (models.ChatRequest, error) {
	args := m.Called(ctx, receiverID)
	var req models.ChatRequest
	if val := args.Get(0); val != nil {
		req = val.(models.ChatRequest)
	}
	return req, args.Error(1)
}

func (m *APIClientMock) ResolveRequest(ctx context.Context, requestID int, outcome models.RequestStatus) (models.ChatRequest, error) {
	args := m.Called(ctx, requestID, outcome)
	var req models.ChatRequest
	if val := args.Get(0); val != nil {
		req = val.(models.ChatRequest)
	}
	return req, args.Error(1)
}

func (m *APIClientMock) ListMessages(ctx context.Context, counterpartID int) ([]models.Message, error) {
	args := m.Called(ctx, counterpartID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *APIClientMock) SendMessage(ctx context.Context, receiverID int, content string) (models.Message, error) {
	args := m.Called(ctx, receiverID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *APIClientMock) UnreadCounts(ctx context.Context) (map[int]int, error) {
	args := m.Called(ctx)
	var counts map[int]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int]int)
	}
	return counts, args.Error(1)
}

var _ api.Client = (*APIClientMock)(nil)

// PublisherMock records audit publications.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
