package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"rtc-service/internal/queue"
)

type EnqueuerMock struct {
	mock.Mock
}

func (m *EnqueuerMock) Enqueue(ctx context.Context, jobID string, routingKey string, payload any) error {
	args := m.Called(ctx, jobID, routingKey, payload)
	return args.Error(0)
}

func (m *EnqueuerMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ queue.Enqueuer = (*EnqueuerMock)(nil)
