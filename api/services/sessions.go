package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackhive/user-services/api/middleware"
	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/internal/authn"
	"github.com/trackhive/user-services/internal/session"
	"github.com/trackhive/user-services/models"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// LoginService verifies a login/password pair, opens a session and
// returns a bearer token for it.
func LoginService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		HandleErrResponse(w, apperr.MissingParameter("request body must be a JSON object"))
		return
	}
	if payload.Login == "" || payload.Password == "" {
		HandleErrResponse(w, apperr.MissingParameter("login and password are both required"))
		return
	}

	user, err := svc.DB.GetUserByLogin(r.Context(), payload.Login)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to look up user for login")
		HandleErrResponse(w, err)
		return
	}
	if user == nil {
		HandleErrResponse(w, apperr.InvalidCredentials())
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.CredentialHash), []byte(payload.Password)); err != nil {
		HandleErrResponse(w, apperr.InvalidCredentials())
		return
	}
	if !user.Enabled {
		HandleErrResponse(w, apperr.AccountDisabled(user.DisabledReason))
		return
	}
	if user.PasswordChangeRequired {
		HandleErrResponse(w, apperr.PasswordChangeRequired())
		return
	}

	ttl := time.Duration(svc.Config.Auth.TokenTTLHours) * time.Hour
	if payload.Remember {
		ttl = time.Duration(svc.Config.Auth.RememberTTLHours) * time.Hour
	}
	expiresAt := time.Now().UTC().Add(ttl)

	sess := session.Session{
		SessionID: uuid.New().String(),
		UserID:    user.ID,
		Login:     user.Login,
		Remember:  payload.Remember,
		ExpiresAt: expiresAt,
	}
	if err := svc.Sessions.Create(r.Context(), sess); err != nil {
		logger.Error().Err(err).Msg("Failed to store session")
		HandleErrResponse(w, err)
		return
	}

	token, err := svc.Auth.IssueToken(user.ID, user.Login, sess.SessionID, expiresAt)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to sign session token")
		HandleErrResponse(w, err)
		return
	}

	// Login counts as activity even if the caller never hits the read path
	if err := svc.DB.TouchLastSeen(r.Context(), user.ID); err != nil {
		logger.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to update last seen")
	}

	logger.Info().Int64("user_id", user.ID).Msg("User logged in")

	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data: map[string]interface{}{
			"id":    user.ID,
			"token": token,
		},
	})
}

// LogoutService revokes the caller's session. Logging out without a live
// session is not an error.
func LogoutService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
	if ok {
		if err := svc.Sessions.Delete(r.Context(), claims.SessionID); err != nil {
			logger.Error().Err(err).Msg("Failed to delete session")
			HandleErrResponse(w, err)
			return
		}
		logger.Info().Int64("user_id", claims.UserID).Msg("User logged out")
	}

	WriteResponse(w, http.StatusOK, models.Response{Success: 1, Data: map[string]interface{}{}})
}

// ValidLoginService reports whether a login/token pair names a live
// session. The answer is a plain boolean; no detail about why a token is
// not valid is disclosed.
func ValidLoginService(svc *Service, w http.ResponseWriter, r *http.Request) {

	login := r.URL.Query().Get("login")
	token := r.URL.Query().Get("token")
	if login == "" {
		HandleErrResponse(w, apperr.MissingParameter("login is required"))
		return
	}
	if token == "" {
		if raw, ok := r.Context().Value(middleware.TokenKey).(string); ok {
			token = raw
		}
	}

	valid := false
	if token != "" {
		if claims, err := svc.Auth.ParseClaims(token); err == nil {
			sess, serr := svc.Sessions.Get(r.Context(), claims.SessionID)
			if serr != nil {
				HandleErrResponse(w, serr)
				return
			}
			valid = sess != nil &&
				sess.UserID == claims.UserID &&
				strings.EqualFold(sess.Login, login)
		}
	}

	WriteResponse(w, http.StatusOK, models.Response{Success: 1, Data: valid})
}

// WhoamiService describes the calling user. A local session wins; failing
// that, a bearer token is verified against the external identity service
// and mapped to a local account by email. The tracking id is a keyed hash
// of the user id, stable per user but not reversible without the secret.
func WhoamiService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	caller, err := svc.CallerFromRequest(r)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve caller")
		HandleErrResponse(w, err)
		return
	}

	if caller.Authenticated() {
		writeWhoami(svc, w, caller.User, caller.Memberships)
		return
	}

	raw, ok := r.Context().Value(middleware.TokenKey).(string)
	if !ok || raw == "" {
		HandleErrResponse(w, apperr.AccessDenied("you must be logged in to ask who you are"))
		return
	}

	if svc.Identity == nil {
		HandleErrResponse(w, apperr.InvalidApiCredential())
		return
	}

	email, err := svc.Identity.VerifyToken(r.Context(), raw)
	if err != nil {
		logger.Debug().Err(err).Msg("Identity service rejected token")
		HandleErrResponse(w, apperr.InvalidApiCredential())
		return
	}

	user, err := svc.DB.GetUserByLogin(r.Context(), email)
	if err != nil {
		HandleErrResponse(w, err)
		return
	}
	if user == nil {
		HandleErrResponse(w, apperr.InvalidApiCredential())
		return
	}

	memberships, err := svc.DB.GetMemberships(r.Context(), user.ID)
	if err != nil {
		HandleErrResponse(w, err)
		return
	}

	writeWhoami(svc, w, user, memberships)
}

func writeWhoami(svc *Service, w http.ResponseWriter, user *models.User, memberships []models.Membership) {
	groups := make([]string, 0, len(memberships))
	for _, m := range memberships {
		groups = append(groups, m.Group.Name)
	}

	externalHandle := ""
	if user.ExternalHandle != nil {
		externalHandle = *user.ExternalHandle
	}

	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data: map[string]interface{}{
			"id":              user.ID,
			"real_name":       user.DisplayName,
			"nick":            user.Nickname,
			"name":            user.Login,
			"mfa_enabled":     user.MFAEnabled,
			"groups":          groups,
			"tracking_id":     svc.TrackingID(user.ID),
			"external_handle": externalHandle,
		},
	})
}

// TrackingID derives the anonymized analytics id for a user.
func (s *Service) TrackingID(userID int64) string {
	mac := hmac.New(sha256.New, s.TrackingSecret)
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
