package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/trackhive/user-services/internal/events"
	"github.com/trackhive/user-services/internal/match"
	"github.com/trackhive/user-services/internal/session"
	"github.com/trackhive/user-services/models"
)

type MockUserStore struct {
	mock.Mock
}

type MockNotifier struct {
	mock.Mock
}

type MockMailer struct {
	mock.Mock
}

type MockIdentityVerifier struct {
	mock.Mock
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	args := m.Called(login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) MatchUsers(ctx context.Context, q match.Query, limit int, includeDisabled bool) ([]models.User, error) {
	args := m.Called(q, limit, includeDisabled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	args := m.Called(user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) TouchLastSeen(ctx context.Context, userID int64) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockUserStore) SavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SavedSearch), args.Error(1)
}

func (m *MockUserStore) ApplyUserUpdates(ctx context.Context, updates []models.UserUpdate) error {
	args := m.Called(updates)
	return args.Error(0)
}

func (m *MockUserStore) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockUserStore) GetGroupsByIDs(ctx context.Context, ids []int64) ([]models.Group, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Group), args.Error(1)
}

func (m *MockUserStore) GetMemberships(ctx context.Context, userID int64) ([]models.Membership, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Membership), args.Error(1)
}

func (m *MockUserStore) UserInAnyGroup(ctx context.Context, userID int64, groupIDs []int64) (bool, error) {
	args := m.Called(userID, groupIDs)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) CreateOfferToken(ctx context.Context, email string) (string, error) {
	args := m.Called(email)
	return args.String(0), args.Error(1)
}

func (m *MockNotifier) Publish(event events.UserEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockNotifier) Close() {
	m.Called()
}

func (m *MockMailer) SendOffer(ctx context.Context, toAddress, token string) error {
	args := m.Called(toAddress, token)
	return args.Error(0)
}

func (m *MockIdentityVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func (m *MockSessionStore) Create(ctx context.Context, s session.Session) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionStore) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(sessionID)
	return args.Error(0)
}
