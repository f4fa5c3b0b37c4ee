package mocks

import (
	"context"

	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/workflow"
	"github.com/stretchr/testify/mock"
)

// MockEngine mocks the engine operations driven by the sweeper and the dispatcher.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Start(ctx context.Context, req workflow.StartRequest) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockEngine) Decide(ctx context.Context, req approvals.DecideRequest) (*approvals.DecideResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*approvals.DecideResult), args.Error(1)
}

func (m *MockEngine) Cancel(ctx context.Context, req workflow.CancelRequest) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

// MockFirer is a mock implementation of scheduler.Firer interface.
type MockFirer struct {
	mock.Mock
}

func (m *MockFirer) OnScheduleFire(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}
