package mocks

import (
	"github.com/brettbedarf/snapfs/snapshot"
	"github.com/stretchr/testify/mock"
)

// MockSnapshotStore implements snapshot.Store for testing across packages
type MockSnapshotStore struct {
	mock.Mock
}

var _ snapshot.Store = (*MockSnapshotStore)(nil)

func (m *MockSnapshotStore) Write(src snapshot.Saver) error {
	args := m.Called(src)

	// Handle function return types (for tests that inspect the snapshot)
	if fn, ok := args.Get(0).(func(snapshot.Saver) error); ok {
		return fn(src)
	}
	return args.Error(0)
}

func (m *MockSnapshotStore) Read(dst snapshot.Loader) error {
	args := m.Called(dst)

	// Handle function return types (for tests that feed a snapshot)
	if fn, ok := args.Get(0).(func(snapshot.Loader) error); ok {
		return fn(dst)
	}
	return args.Error(0)
}

func (m *MockSnapshotStore) Location() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSnapshotStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
