// Package mocks provides test doubles for the gemini client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// GenerateJSON provides a mock function with given fields: ctx, system, prompt
func (_m *MockClient) GenerateJSON(ctx context.Context, system string, prompt string) (string, error) {
	ret := _m.Called(ctx, system, prompt)

	if len(ret) == 0 {
		panic("no return value specified for GenerateJSON")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string) (string, error)); ok {
		return rf(ctx, system, prompt)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
