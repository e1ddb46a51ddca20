package mocks

import (
	"context"

	"story-player/internal/clients"
	"story-player/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStoryAPIClient is a mock type for the StoryAPIClient type
type MockStoryAPIClient struct {
	mock.Mock
}

// StartStory provides a mock function with given fields: ctx, req
func (_m *MockStoryAPIClient) StartStory(ctx context.Context, req models.StartRequest) (*models.StartResult, error) {
	ret := _m.Called(ctx, req)

	var r0 *models.StartResult
	if rf, ok := ret.Get(0).(func(context.Context, models.StartRequest) *models.StartResult); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*models.StartResult)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, models.StartRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ContinueStory provides a mock function with given fields: ctx, req
func (_m *MockStoryAPIClient) ContinueStory(ctx context.Context, req models.ContinueRequest) (*models.ContinueResult, error) {
	ret := _m.Called(ctx, req)

	var r0 *models.ContinueResult
	if rf, ok := ret.Get(0).(func(context.Context, models.ContinueRequest) *models.ContinueResult); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*models.ContinueResult)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, models.ContinueRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// PollBranches provides a mock function with given fields: ctx, sessionID, checkpoint
func (_m *MockStoryAPIClient) PollBranches(ctx context.Context, sessionID string, checkpoint int) (*models.PollResult, error) {
	ret := _m.Called(ctx, sessionID, checkpoint)

	var r0 *models.PollResult
	if rf, ok := ret.Get(0).(func(context.Context, string, int) *models.PollResult); ok {
		r0 = rf(ctx, sessionID, checkpoint)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*models.PollResult)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, sessionID, checkpoint)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// HealthCheck provides a mock function with given fields: ctx
func (_m *MockStoryAPIClient) HealthCheck(ctx context.Context) (bool, error) {
	ret := _m.Called(ctx)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context) bool); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Bool(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockStoryAPIClient creates a new instance of MockStoryAPIClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockStoryAPIClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryAPIClient {
	m := &MockStoryAPIClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ clients.StoryAPIClient = (*MockStoryAPIClient)(nil)
