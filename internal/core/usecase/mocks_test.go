package usecase

import (
	"context"
	"sync"

	"github.com/rbroggi/slotcast/internal/core/model"
)

// MockTokenIssuer is a mock implementation of the TokenIssuer interface.
type MockTokenIssuer struct {
	issued    []model.Claims
	IssueFunc func(claims model.Claims) (string, error)
}

func (m *MockTokenIssuer) Issue(claims model.Claims) (string, error) {
	m.issued = append(m.issued, claims)
	if m.IssueFunc != nil {
		return m.IssueFunc(claims)
	}
	return "token-" + claims.ID + "-" + claims.UserName, nil
}

// MockAvatarSource is a mock implementation of the AvatarSource interface.
type MockAvatarSource struct {
	Images []string
	Err    error
}

func (m *MockAvatarSource) Candidates(context.Context) ([]string, error) {
	return m.Images, m.Err
}

// MockStreamProvider is a mock implementation of the StreamProvider interface.
type MockStreamProvider struct {
	mu          sync.Mutex
	created     []string
	deleted     []string
	CreateFunc  func(ctx context.Context, name string) (*model.StreamHandle, error)
	DeleteError error
}

func (m *MockStreamProvider) CreateStream(ctx context.Context, name string) (*model.StreamHandle, error) {
	m.mu.Lock()
	m.created = append(m.created, name)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, name)
	}
	return &model.StreamHandle{Key: "key-" + name, ID: "id-" + name, Details: map[string]any{"name": name}}, nil
}

func (m *MockStreamProvider) DeleteStream(ctx context.Context, id string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	m.mu.Unlock()
	return m.DeleteError
}
