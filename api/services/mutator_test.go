package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/models"
)

func managerCaller(blessGroups ...models.Group) Caller {
	memberships := []models.Membership{
		{Group: models.Group{ID: 30, Name: GroupEditUsers}},
	}
	for _, g := range blessGroups {
		memberships = append(memberships, models.Membership{Group: g, CanBless: true})
	}
	return authenticatedCallerFor(testUser(99, "admin@example.com"), memberships...)
}

func TestUpdateUsersRequiresManagerPrivilege(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	caller := authenticatedCallerFor(testUser(2, "bob@example.com"))
	_, err := svc.UpdateUsers(context.Background(), caller, UpdateParams{IDs: []int64{1}})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeAccessDenied, e.Code)
}

func TestUpdateUsersRequiresTargets(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	_, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeMissingParameter, e.Code)
}

func TestUpdateUsersLoginChangeRejectsBatch(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	bob := testUser(2, "bob@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetUserByID", int64(2)).Return(bob, nil)

	newLogin := "renamed@example.com"
	_, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{
		IDs:     []int64{1, 2},
		Updates: UserUpdates{Login: &newLogin},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeUnsupportedBatchOperation, e.Code)
}

func TestUpdateUsersLoginMustBeAvailable(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	taken := testUser(3, "taken@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetUserByLogin", "taken@example.com").Return(taken, nil)

	newLogin := "taken@example.com"
	_, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{
		IDs:     []int64{1},
		Updates: UserUpdates{Login: &newLogin},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeAccountExists, e.Code)
}

func TestUpdateUsersPasswordTooShort(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)

	short := "tiny"
	_, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{
		IDs:     []int64{1},
		Updates: UserUpdates{Password: &short},
	})

	e, ok := apperr.From(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodePasswordTooShort, e.Code)
}

func TestUpdateUsersFieldChangeRecord(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	alice.DisplayName = "Alice"
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{}, nil)
	mockDB.On("ApplyUserUpdates", mock.Anything).Return(nil)

	name := "Alice Cooper"
	records, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{
		IDs:     []int64{1},
		Updates: UserUpdates{DisplayName: &name},
	})

	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, models.FieldDelta{Removed: "Alice", Added: "Alice Cooper"}, records[0].Changes["real_name"])
	mockDB.AssertExpectations(t)
}

func TestUpdateUsersGroupSetRetainsUnblessable(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	devs := models.Group{ID: 5, Name: "developers"}
	editbugs := models.Group{ID: 6, Name: "editbugs"}
	coreSecurity := models.Group{ID: 7, Name: "core-security"}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	// Alice currently holds developers and core-security
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{
		{Group: devs},
		{Group: coreSecurity},
	}, nil)
	mockDB.On("GetGroupByName", "developers").Return(&devs, nil)
	mockDB.On("GetGroupByName", "editbugs").Return(&editbugs, nil)

	var applied []models.UserUpdate
	mockDB.On("ApplyUserUpdates", mock.Anything).Run(func(args mock.Arguments) {
		applied = args.Get(0).([]models.UserUpdate)
	}).Return(nil)

	// The caller can bless developers and editbugs but not core-security.
	// A set of {developers, editbugs} must add editbugs and keep
	// core-security despite its absence from the requested set.
	caller := managerCaller(devs, editbugs)
	records, err := svc.UpdateUsers(context.Background(), caller, UpdateParams{
		IDs: []int64{1},
		Updates: UserUpdates{
			Groups: &GroupDelta{Set: []string{"developers", "editbugs"}},
		},
	})

	assert.NoError(t, err)
	assert.Len(t, applied, 1)
	assert.Equal(t, []int64{6}, applied[0].GroupAdds)
	assert.Empty(t, applied[0].GroupRemoves)
	assert.Equal(t, models.FieldDelta{Removed: "", Added: "editbugs"}, records[0].Changes["groups"])
}

func TestUpdateUsersBlessedRemovalApplies(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	devs := models.Group{ID: 5, Name: "developers"}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{
		{Group: devs},
	}, nil)
	mockDB.On("GetGroupByName", "developers").Return(&devs, nil)

	var applied []models.UserUpdate
	mockDB.On("ApplyUserUpdates", mock.Anything).Run(func(args mock.Arguments) {
		applied = args.Get(0).([]models.UserUpdate)
	}).Return(nil)

	caller := managerCaller(devs)
	records, err := svc.UpdateUsers(context.Background(), caller, UpdateParams{
		IDs: []int64{1},
		Updates: UserUpdates{
			Groups: &GroupDelta{Remove: []string{"developers"}},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, []int64{5}, applied[0].GroupRemoves)
	assert.Equal(t, models.FieldDelta{Removed: "developers", Added: ""}, records[0].Changes["groups"])
}

func TestUpdateUsersSingleTransactionAcrossTargets(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	alice := testUser(1, "alice@example.com")
	bob := testUser(2, "bob@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetUserByID", int64(2)).Return(bob, nil)
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{}, nil)
	mockDB.On("GetMemberships", int64(2)).Return([]models.Membership{}, nil)

	var applied []models.UserUpdate
	mockDB.On("ApplyUserUpdates", mock.Anything).Run(func(args mock.Arguments) {
		applied = args.Get(0).([]models.UserUpdate)
	}).Return(nil).Once()

	name := "Renamed"
	_, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{
		IDs:     []int64{1, 2},
		Updates: UserUpdates{DisplayName: &name},
	})

	assert.NoError(t, err)
	assert.Len(t, applied, 2, "both targets must travel in one batch")
	mockDB.AssertExpectations(t)
}

func TestUpdateUsersPublishesEvents(t *testing.T) {
	mockDB := new(MockUserStore)
	mockPublisher := new(MockNotifier)
	svc := &Service{Config: testConfig(), DB: mockDB, Publisher: mockPublisher}

	alice := testUser(1, "alice@example.com")
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{}, nil)
	mockDB.On("ApplyUserUpdates", mock.Anything).Return(nil)
	mockPublisher.On("Publish", mock.Anything).Return(nil)

	name := "Renamed"
	_, err := svc.UpdateUsers(context.Background(), managerCaller(), UpdateParams{
		IDs:     []int64{1},
		Updates: UserUpdates{DisplayName: &name},
	})

	assert.NoError(t, err)
	mockPublisher.AssertExpectations(t)
}
