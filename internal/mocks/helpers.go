package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// NewMockBackendForTest creates a new mock signing backend for testing.
func NewMockBackendForTest(t *testing.T) *MockBackend {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockBackend(ctrl)
}
