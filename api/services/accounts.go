package services

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/internal/events"
	"github.com/trackhive/user-services/models"
)

type offerAccountRequest struct {
	Email string `json:"email"`
}

// OfferAccountService issues an account-confirmation token for an email
// address that has no account yet and mails the confirmation link.
func OfferAccountService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	var payload offerAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		HandleErrResponse(w, apperr.MissingParameter("request body must be a JSON object"))
		return
	}
	if payload.Email == "" {
		HandleErrResponse(w, apperr.MissingParameter("an email address is required"))
		return
	}
	if !IsValidEmail(payload.Email) {
		HandleErrResponse(w, apperr.InvalidEmailFormat(payload.Email))
		return
	}

	existing, err := svc.DB.GetUserByLogin(r.Context(), payload.Email)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to check for existing account")
		HandleErrResponse(w, err)
		return
	}
	if existing != nil {
		HandleErrResponse(w, apperr.AccountExists(payload.Email))
		return
	}

	token, err := svc.DB.CreateOfferToken(r.Context(), payload.Email)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create offer token")
		HandleErrResponse(w, err)
		return
	}

	if err := svc.Mailer.SendOffer(r.Context(), payload.Email, token); err != nil {
		logger.Error().Err(err).Msg("Failed to send offer email")
		HandleErrResponse(w, err)
		return
	}

	logger.Info().Msg("Account offer sent")

	WriteResponse(w, http.StatusOK, models.Response{Success: 1, Data: map[string]interface{}{}})
}

type createUserRequest struct {
	Email          string  `json:"email"`
	FullName       string  `json:"full_name"`
	Password       string  `json:"password"`
	ExternalHandle *string `json:"external_handle"`
}

// CreateUserService creates an account directly. Reserved for user
// managers; self-service signup goes through the offer-account flow.
func CreateUserService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	caller, err := svc.CallerFromRequest(r)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve caller")
		HandleErrResponse(w, err)
		return
	}
	if !caller.Authenticated() || !caller.InGroup(GroupEditUsers) {
		HandleErrResponse(w, apperr.AccessDenied("you are not authorized to create users"))
		return
	}

	var payload createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		HandleErrResponse(w, apperr.MissingParameter("request body must be a JSON object"))
		return
	}
	if payload.Email == "" {
		HandleErrResponse(w, apperr.MissingParameter("an email address is required"))
		return
	}
	if !IsValidEmail(payload.Email) {
		HandleErrResponse(w, apperr.InvalidEmailFormat(payload.Email))
		return
	}

	existing, err := svc.DB.GetUserByLogin(r.Context(), payload.Email)
	if err != nil {
		HandleErrResponse(w, err)
		return
	}
	if existing != nil {
		HandleErrResponse(w, apperr.AccountExists(payload.Email))
		return
	}

	user := models.User{
		Login:          payload.Email,
		DisplayName:    payload.FullName,
		Nickname:       NicknameForLogin(payload.Email),
		Enabled:        true,
		EmailEnabled:   true,
		ExternalHandle: payload.ExternalHandle,
	}

	if payload.Password != "" {
		min := svc.Config.Auth.MinPasswordLength
		if len(payload.Password) < min {
			HandleErrResponse(w, apperr.PasswordTooShort(min))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
		if err != nil {
			HandleErrResponse(w, err)
			return
		}
		user.CredentialHash = string(hash)
	} else {
		// No password yet: the account exists but cannot log in until the
		// user sets one through the reset flow.
		user.PasswordChangeRequired = true
	}

	created, err := svc.DB.CreateUser(r.Context(), &user)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create user")
		HandleErrResponse(w, err)
		return
	}

	if svc.Publisher != nil {
		event := events.UserEvent{UserID: created.ID, Login: created.Login, Action: "create"}
		if err := svc.Publisher.Publish(event); err != nil {
			logger.Error().Err(err).Msg("Failed to publish user-created event")
			HandleErrResponse(w, err)
			return
		}
	}

	logger.Info().Int64("user_id", created.ID).Msg("User created")

	WriteResponse(w, http.StatusCreated, models.Response{
		Success: 1,
		Data:    map[string]interface{}{"id": created.ID},
	})
}
