package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/trackhive/user-services/api/middleware"
	"github.com/trackhive/user-services/internal/appconfig"
	"github.com/trackhive/user-services/internal/authn"
	"github.com/trackhive/user-services/internal/events"
	"github.com/trackhive/user-services/internal/match"
	"github.com/trackhive/user-services/internal/session"
	"github.com/trackhive/user-services/models"
)

// Well-known privilege groups. Membership in them gates the write path
// and widens what the projector may disclose.
const (
	// GroupEditUsers allows account creation and the batch update path.
	GroupEditUsers = "editusers"
	// GroupSeeAllGroups allows viewing any user's full membership list.
	GroupSeeAllGroups = "seeallgroups"
)

// UserStore is the persistence surface the services need. *db.UserDB
// implements it; tests substitute a mock.
type UserStore interface {
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	MatchUsers(ctx context.Context, q match.Query, limit int, includeDisabled bool) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	TouchLastSeen(ctx context.Context, userID int64) error
	SavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error)
	ApplyUserUpdates(ctx context.Context, updates []models.UserUpdate) error
	GetGroupByName(ctx context.Context, name string) (*models.Group, error)
	GetGroupsByIDs(ctx context.Context, ids []int64) ([]models.Group, error)
	GetMemberships(ctx context.Context, userID int64) ([]models.Membership, error)
	UserInAnyGroup(ctx context.Context, userID int64, groupIDs []int64) (bool, error)
	CreateOfferToken(ctx context.Context, email string) (string, error)
}

// OfferMailer sends the account offer email.
type OfferMailer interface {
	SendOffer(ctx context.Context, toAddress, token string) error
}

// IdentityVerifier exchanges a bearer token for a verified email address.
type IdentityVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Service contains all shared dependencies for handlers.
type Service struct {
	Config         *appconfig.Config
	DB             UserStore
	Sessions       session.Store
	Auth           *authn.Authenticator
	Publisher      events.Notifier
	Mailer         OfferMailer
	Identity       IdentityVerifier
	TrackingSecret []byte
}

// Caller is the request-scoped identity every operation receives. A zero
// Caller is an unauthenticated request.
type Caller struct {
	User        *models.User
	Memberships []models.Membership
}

func (c Caller) Authenticated() bool {
	return c.User != nil
}

func (c Caller) Self(userID int64) bool {
	return c.User != nil && c.User.ID == userID
}

// InGroup reports membership in the named group.
func (c Caller) InGroup(name string) bool {
	for _, m := range c.Memberships {
		if m.Group.Name == name {
			return true
		}
	}
	return false
}

// InGroupID reports membership in the group with the given id.
func (c Caller) InGroupID(groupID int64) bool {
	for _, m := range c.Memberships {
		if m.Group.ID == groupID {
			return true
		}
	}
	return false
}

// CanBless reports whether the caller holds bless rights on the group.
// Bless is strictly per-group; no blanket privilege implies it.
func (c Caller) CanBless(groupID int64) bool {
	for _, m := range c.Memberships {
		if m.Group.ID == groupID && m.CanBless {
			return true
		}
	}
	return false
}

// CallerFromRequest builds the caller identity from the session claims
// the middleware attached. Absent or stale claims yield an anonymous
// caller, not an error; operations decide what anonymity means for them.
func (s *Service) CallerFromRequest(r *http.Request) (Caller, error) {
	claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
	if !ok {
		return Caller{}, nil
	}

	user, err := s.DB.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return Caller{}, err
	}
	if user == nil || !user.Enabled {
		return Caller{}, nil
	}

	memberships, err := s.DB.GetMemberships(r.Context(), user.ID)
	if err != nil {
		return Caller{}, err
	}

	return Caller{User: user, Memberships: memberships}, nil
}

// NicknameForLogin derives the display nickname from a login address.
func NicknameForLogin(login string) string {
	if i := strings.Index(login, "@"); i >= 0 {
		return login[:i]
	}
	return login
}
