// File: internal/mocks/sink.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSink mocks report.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Attach(ctx context.Context, scenario, name, contentType string, body []byte) error {
	args := m.Called(ctx, scenario, name, contentType, body)
	return args.Error(0)
}
