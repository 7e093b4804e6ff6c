// Package mocks provides test doubles for the pexels client.
package mocks

import (
	"context"

	pexels "github.com/sells-group/reel-cli/pkg/pexels"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchVideos provides a mock function with given fields: ctx, req
func (_m *MockClient) SearchVideos(ctx context.Context, req pexels.SearchRequest) (*pexels.VideoResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for SearchVideos")
	}

	var r0 *pexels.VideoResponse
	if rf, ok := ret.Get(0).(func(context.Context, pexels.SearchRequest) (*pexels.VideoResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*pexels.VideoResponse)
	}
	return r0, ret.Error(1)
}

// SearchPhotos provides a mock function with given fields: ctx, req
func (_m *MockClient) SearchPhotos(ctx context.Context, req pexels.SearchRequest) (*pexels.PhotoResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for SearchPhotos")
	}

	var r0 *pexels.PhotoResponse
	if rf, ok := ret.Get(0).(func(context.Context, pexels.SearchRequest) (*pexels.PhotoResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*pexels.PhotoResponse)
	}
	return r0, ret.Error(1)
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
