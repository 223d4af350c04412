package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/internal/appconfig"
	"github.com/trackhive/user-services/internal/match"
	"github.com/trackhive/user-services/models"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Auth: appconfig.AuthConfig{
			TokenTTLHours:     24,
			RememberTTLHours:  720,
			MinPasswordLength: 8,
			DefaultMatchLimit: 100,
			MaxMatchLimit:     1000,
		},
	}
}

func testUser(id int64, login string) *models.User {
	return &models.User{
		ID:          id,
		Login:       login,
		DisplayName: "Test User",
		Nickname:    NicknameForLogin(login),
		Enabled:     true,
	}
}

func authenticatedCallerFor(user *models.User, memberships ...models.Membership) Caller {
	return Caller{User: user, Memberships: memberships}
}

func TestResolveUsersRequiresAtLeastOneSource(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	_, _, err := svc.ResolveUsers(context.Background(), Caller{}, ResolveParams{})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeMissingParameter, e.Code)
}

func TestResolveUsersByName(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)

	users, faults, err := svc.ResolveUsers(context.Background(), Caller{}, ResolveParams{
		Names: []string{"alice@example.com"},
	})

	assert.NoError(t, err)
	assert.Empty(t, faults)
	assert.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].ID)
	mockDB.AssertExpectations(t)
}

func TestResolveUsersUnknownNameAborts(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	mockDB.On("GetUserByLogin", "ghost@example.com").Return(nil, nil)

	_, _, err := svc.ResolveUsers(context.Background(), Caller{}, ResolveParams{
		Names: []string{"ghost@example.com"},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeNotFound, e.Code)
}

func TestResolveUsersPermissiveRecordsFault(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)
	mockDB.On("GetUserByLogin", "ghost@example.com").Return(nil, nil)

	users, faults, err := svc.ResolveUsers(context.Background(), Caller{}, ResolveParams{
		Names:      []string{"alice@example.com", "ghost@example.com"},
		Permissive: true,
	})

	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Len(t, faults, 1)
	assert.Equal(t, "ghost@example.com", faults[0].Token)
}

func TestResolveUsersByIDRequiresAuthentication(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	_, _, err := svc.ResolveUsers(context.Background(), Caller{}, ResolveParams{
		IDs: []int64{7},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeAccessDenied, e.Code)
}

func TestResolveUsersByID(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	bob := testUser(7, "bob@example.com")
	mockDB.On("GetUserByID", int64(7)).Return(bob, nil)

	caller := authenticatedCallerFor(testUser(1, "alice@example.com"))
	users, _, err := svc.ResolveUsers(context.Background(), caller, ResolveParams{
		IDs: []int64{7},
	})

	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "bob@example.com", users[0].Login)
}

func TestResolveUsersHiddenTargetDenied(t *testing.T) {
	mockDB := new(MockUserStore)
	cfg := testConfig()
	cfg.Auth.HiddenGroup = "insiders"
	svc := &Service{Config: cfg, DB: mockDB}

	bob := testUser(7, "bob@example.com")
	insiders := &models.Group{ID: 42, Name: "insiders"}
	mockDB.On("GetUserByID", int64(7)).Return(bob, nil)
	mockDB.On("GetGroupByName", "insiders").Return(insiders, nil)
	mockDB.On("UserInAnyGroup", int64(7), []int64{42}).Return(true, nil)

	caller := authenticatedCallerFor(testUser(1, "alice@example.com"))
	_, _, err := svc.ResolveUsers(context.Background(), caller, ResolveParams{
		IDs: []int64{7},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeAccessDenied, e.Code)
}

func TestResolveUsersMatchRequiresAuthentication(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	_, _, err := svc.ResolveUsers(context.Background(), Caller{}, ResolveParams{
		Match: []string{"ali"},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeAccessDenied, e.Code)
}

func TestResolveUsersMatchDeduplicates(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)
	mockDB.On("MatchUsers", mock.Anything, 100, false).Return([]models.User{*alice}, nil)

	caller := authenticatedCallerFor(testUser(2, "carol@example.com"))
	users, _, err := svc.ResolveUsers(context.Background(), caller, ResolveParams{
		Names: []string{"alice@example.com"},
		Match: []string{"ali"},
	})

	assert.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestResolveUsersSkipsBlankMatchTokens(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	caller := authenticatedCallerFor(testUser(2, "carol@example.com"))
	users, _, err := svc.ResolveUsers(context.Background(), caller, ResolveParams{
		Match: []string{"   "},
	})

	assert.NoError(t, err)
	assert.Empty(t, users)
	mockDB.AssertNotCalled(t, "MatchUsers", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatchLimitClamping(t *testing.T) {
	svc := &Service{Config: testConfig()}

	assert.Equal(t, 100, svc.matchLimit(0), "default when unspecified")
	assert.Equal(t, 10, svc.matchLimit(10), "caller may lower the limit")
	assert.Equal(t, 500, svc.matchLimit(500), "caller may raise up to the maximum")
	assert.Equal(t, 1000, svc.matchLimit(5000), "never beyond the installation maximum")
}

func TestMatchClassificationFeedsQuery(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	expected := match.Classify(":ali")
	mockDB.On("MatchUsers", expected, 100, false).Return([]models.User{}, nil)

	caller := authenticatedCallerFor(testUser(2, "carol@example.com"))
	_, _, err := svc.ResolveUsers(context.Background(), caller, ResolveParams{
		Match: []string{":ali"},
	})

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
}
