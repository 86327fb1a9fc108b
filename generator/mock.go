package generator

import (
	"github.com/ruteri/account-generator/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockBackend mocks the GeneratorBackend interface
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBackend) Open() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBackend) Generate() (*interfaces.Account, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Account), args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockKeyGenerator mocks the KeyGenerator interface
type MockKeyGenerator struct {
	mock.Mock
}

func (m *MockKeyGenerator) Generate() (*interfaces.Account, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Account), args.Error(1)
}
