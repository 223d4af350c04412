package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackhive/user-services/api/middleware"
	"github.com/trackhive/user-services/internal/authn"
	"github.com/trackhive/user-services/internal/session"
	"github.com/trackhive/user-services/models"
)

func timeInOneHour() time.Time {
	return time.Now().UTC().Add(time.Hour)
}

func decodeResponse(t *testing.T, res *http.Response) models.Response {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	assert.NoError(t, err)

	var response models.Response
	assert.NoError(t, json.Unmarshal(body, &response))
	return response
}

func loginBody(t *testing.T, login, password string) *bytes.Reader {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"login":    login,
		"password": password,
	})
	assert.NoError(t, err)
	return bytes.NewReader(payload)
}

func TestLoginServiceSuccess(t *testing.T) {
	mockDB := new(MockUserStore)
	mockSessions := new(MockSessionStore)
	svc := &Service{
		Config:   testConfig(),
		DB:       mockDB,
		Sessions: mockSessions,
		Auth:     authn.NewAuthenticator([]byte("test-secret")),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	assert.NoError(t, err)

	alice := testUser(1, "alice@example.com")
	alice.CredentialHash = string(hash)
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)
	mockDB.On("TouchLastSeen", int64(1)).Return(nil)
	mockSessions.On("Create", mock.AnythingOfType("session.Session")).Return(nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody(t, "alice@example.com", "correct horse"))
	w := httptest.NewRecorder()

	LoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	response := decodeResponse(t, res)
	assert.Equal(t, 1, response.Success)

	data, ok := response.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, float64(1), data["id"])
	assert.NotEmpty(t, data["token"])

	// The token must carry claims our authenticator accepts
	claims, err := svc.Auth.ParseClaims(data["token"].(string))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)

	mockDB.AssertExpectations(t)
	mockSessions.AssertExpectations(t)
}

func TestLoginServiceWrongPassword(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	alice := testUser(1, "alice@example.com")
	alice.CredentialHash = string(hash)
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody(t, "alice@example.com", "wrong"))
	w := httptest.NewRecorder()

	LoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	response := decodeResponse(t, res)
	assert.Equal(t, "InvalidCredentials", response.ErrorCode)
}

func TestLoginServiceUnknownUser(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	mockDB.On("GetUserByLogin", "ghost@example.com").Return(nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody(t, "ghost@example.com", "whatever"))
	w := httptest.NewRecorder()

	LoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestLoginServiceDisabledAccount(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{Config: testConfig(), DB: mockDB}

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	alice := testUser(1, "alice@example.com")
	alice.CredentialHash = string(hash)
	alice.Enabled = false
	alice.DisabledReason = "too many spam reports"
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody(t, "alice@example.com", "correct horse"))
	w := httptest.NewRecorder()

	LoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	response := decodeResponse(t, res)
	assert.Equal(t, "AccountDisabled", response.ErrorCode)
	assert.Equal(t, "too many spam reports", response.ErrorDetails)
}

func TestLoginServiceMissingParameters(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	r := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody(t, "alice@example.com", ""))
	w := httptest.NewRecorder()

	LoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	response := decodeResponse(t, res)
	assert.Equal(t, "MissingParameter", response.ErrorCode)
}

func TestLogoutServiceDeletesSession(t *testing.T) {
	mockSessions := new(MockSessionStore)
	svc := &Service{Config: testConfig(), Sessions: mockSessions}

	mockSessions.On("Delete", "sess-1").Return(nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	ctx := context.WithValue(r.Context(), middleware.ClaimsKey, authn.Claims{
		UserID:    1,
		Login:     "alice@example.com",
		SessionID: "sess-1",
	})
	r = r.WithContext(ctx)
	w := httptest.NewRecorder()

	LogoutService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	mockSessions.AssertExpectations(t)
}

func TestLogoutServiceWithoutSessionStillSucceeds(t *testing.T) {
	svc := &Service{Config: testConfig(), Sessions: new(MockSessionStore)}

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()

	LogoutService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestValidLoginService(t *testing.T) {
	mockSessions := new(MockSessionStore)
	auth := authn.NewAuthenticator([]byte("test-secret"))
	svc := &Service{Config: testConfig(), Sessions: mockSessions, Auth: auth}

	expiry := timeInOneHour()
	token, err := auth.IssueToken(1, "alice@example.com", "sess-1", expiry)
	assert.NoError(t, err)

	mockSessions.On("Get", "sess-1").Return(&session.Session{
		SessionID: "sess-1",
		UserID:    1,
		Login:     "alice@example.com",
		ExpiresAt: expiry,
	}, nil)

	r := httptest.NewRequest(http.MethodGet,
		"/auth/valid-login?login=alice@example.com&token="+token, nil)
	w := httptest.NewRecorder()

	ValidLoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	response := decodeResponse(t, res)
	assert.Equal(t, true, response.Data)
}

func TestValidLoginServiceWrongLogin(t *testing.T) {
	mockSessions := new(MockSessionStore)
	auth := authn.NewAuthenticator([]byte("test-secret"))
	svc := &Service{Config: testConfig(), Sessions: mockSessions, Auth: auth}

	expiry := timeInOneHour()
	token, err := auth.IssueToken(1, "alice@example.com", "sess-1", expiry)
	assert.NoError(t, err)

	mockSessions.On("Get", "sess-1").Return(&session.Session{
		SessionID: "sess-1",
		UserID:    1,
		Login:     "alice@example.com",
		ExpiresAt: expiry,
	}, nil)

	r := httptest.NewRequest(http.MethodGet,
		"/auth/valid-login?login=bob@example.com&token="+token, nil)
	w := httptest.NewRecorder()

	ValidLoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	response := decodeResponse(t, res)
	assert.Equal(t, false, response.Data)
}

func TestValidLoginServiceRevokedSession(t *testing.T) {
	mockSessions := new(MockSessionStore)
	auth := authn.NewAuthenticator([]byte("test-secret"))
	svc := &Service{Config: testConfig(), Sessions: mockSessions, Auth: auth}

	token, err := auth.IssueToken(1, "alice@example.com", "sess-1", timeInOneHour())
	assert.NoError(t, err)

	mockSessions.On("Get", "sess-1").Return(nil, nil)

	r := httptest.NewRequest(http.MethodGet,
		"/auth/valid-login?login=alice@example.com&token="+token, nil)
	w := httptest.NewRecorder()

	ValidLoginService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	response := decodeResponse(t, res)
	assert.Equal(t, false, response.Data)
}

func TestWhoamiServiceWithSession(t *testing.T) {
	mockDB := new(MockUserStore)
	svc := &Service{
		Config:         testConfig(),
		DB:             mockDB,
		TrackingSecret: []byte("tracking-secret"),
	}

	alice := testUser(1, "alice@example.com")
	alice.MFAEnabled = true
	mockDB.On("GetUserByID", int64(1)).Return(alice, nil)
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{
		{Group: models.Group{ID: 5, Name: "developers"}},
	}, nil)

	r := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	ctx := context.WithValue(r.Context(), middleware.ClaimsKey, authn.Claims{
		UserID:    1,
		Login:     "alice@example.com",
		SessionID: "sess-1",
	})
	r = r.WithContext(ctx)
	w := httptest.NewRecorder()

	WhoamiService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	response := decodeResponse(t, res)
	data, ok := response.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "alice@example.com", data["name"])
	assert.Equal(t, true, data["mfa_enabled"])
	assert.Equal(t, []interface{}{"developers"}, data["groups"])
	assert.Equal(t, svc.TrackingID(1), data["tracking_id"])
	assert.NotEqual(t, svc.TrackingID(2), data["tracking_id"],
		"tracking ids must differ per user")
}

func TestWhoamiServiceIdentityFallback(t *testing.T) {
	mockDB := new(MockUserStore)
	mockIdentity := new(MockIdentityVerifier)
	svc := &Service{
		Config:         testConfig(),
		DB:             mockDB,
		Identity:       mockIdentity,
		TrackingSecret: []byte("tracking-secret"),
	}

	alice := testUser(1, "alice@example.com")
	mockIdentity.On("VerifyToken", "external-token").Return("alice@example.com", nil)
	mockDB.On("GetUserByLogin", "alice@example.com").Return(alice, nil)
	mockDB.On("GetMemberships", int64(1)).Return([]models.Membership{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	ctx := context.WithValue(r.Context(), middleware.TokenKey, "external-token")
	r = r.WithContext(ctx)
	w := httptest.NewRecorder()

	WhoamiService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	mockIdentity.AssertExpectations(t)
}

func TestWhoamiServiceRejectsUnverifiableToken(t *testing.T) {
	mockIdentity := new(MockIdentityVerifier)
	svc := &Service{Config: testConfig(), DB: new(MockUserStore), Identity: mockIdentity}

	mockIdentity.On("VerifyToken", "bad-token").Return("", assert.AnError)

	r := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	ctx := context.WithValue(r.Context(), middleware.TokenKey, "bad-token")
	r = r.WithContext(ctx)
	w := httptest.NewRecorder()

	WhoamiService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	response := decodeResponse(t, res)
	assert.Equal(t, "InvalidApiCredential", response.ErrorCode)
}

func TestWhoamiServiceAnonymousDenied(t *testing.T) {
	svc := &Service{Config: testConfig(), DB: new(MockUserStore)}

	r := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	w := httptest.NewRecorder()

	WhoamiService(svc, w, r)

	res := w.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
