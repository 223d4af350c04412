package services

import (
	"context"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/models"
)

// FieldFilter narrows the projected field set. Include selects fields on
// top of the defaults; Exclude removes them afterwards and wins ties.
type FieldFilter struct {
	Include []string
	Exclude []string
}

// fieldSpec describes one projectable field: whether it appears without
// being asked for, who may see it, and how its value is produced.
type fieldSpec struct {
	name         string
	explicitOnly bool
	allowed      func(s *Service, caller Caller, target *models.User) bool
	value        func(s *Service, ctx context.Context, caller Caller, target *models.User) (interface{}, error)
}

func anyCaller(*Service, Caller, *models.User) bool { return true }

func authenticatedCaller(_ *Service, caller Caller, _ *models.User) bool {
	return caller.Authenticated()
}

func userManager(_ *Service, caller Caller, _ *models.User) bool {
	return caller.InGroup(GroupEditUsers)
}

var fieldSpecs = []fieldSpec{
	{
		name:    "id",
		allowed: anyCaller,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.ID, nil
		},
	},
	{
		name:    "real_name",
		allowed: anyCaller,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.DisplayName, nil
		},
	},
	{
		name:    "nick",
		allowed: anyCaller,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.Nickname, nil
		},
	},
	{
		name:    "name",
		allowed: anyCaller,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.Login, nil
		},
	},
	{
		name:    "email",
		allowed: authenticatedCaller,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.Login, nil
		},
	},
	{
		name:    "can_login",
		allowed: authenticatedCaller,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.Enabled, nil
		},
	},
	{
		name:         "email_enabled",
		explicitOnly: true,
		allowed:      userManager,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.EmailEnabled, nil
		},
	},
	{
		name:         "login_denied_text",
		explicitOnly: true,
		allowed:      userManager,
		value: func(_ *Service, _ context.Context, _ Caller, u *models.User) (interface{}, error) {
			return u.DisabledReason, nil
		},
	},
	{
		name:         "saved_searches",
		explicitOnly: true,
		allowed: func(_ *Service, caller Caller, target *models.User) bool {
			return caller.Self(target.ID)
		},
		value: func(s *Service, ctx context.Context, _ Caller, u *models.User) (interface{}, error) {
			searches, err := s.DB.SavedSearches(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]interface{}, 0, len(searches))
			for _, search := range searches {
				out = append(out, map[string]interface{}{
					"id":    search.ID,
					"name":  search.Name,
					"query": search.Query,
				})
			}
			return out, nil
		},
	},
	{
		name:         "groups",
		explicitOnly: true,
		allowed:      authenticatedCaller,
		value: func(s *Service, ctx context.Context, caller Caller, u *models.User) (interface{}, error) {
			memberships, err := s.DB.GetMemberships(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			groups := s.DisclosableGroups(caller, u, memberships)
			out := make([]map[string]interface{}, 0, len(groups))
			for _, g := range groups {
				out = append(out, map[string]interface{}{
					"id":          g.ID,
					"name":        g.Name,
					"description": g.Description,
				})
			}
			return out, nil
		},
	},
}

// validateFieldFilter rejects field names outside the closed projection
// set before any projection runs.
func validateFieldFilter(filter FieldFilter) error {
	known := make(map[string]bool, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		known[spec.name] = true
	}
	for _, name := range append(append([]string{}, filter.Include...), filter.Exclude...) {
		if !known[name] {
			return apperr.MissingParameter("'%s' is not a valid user field", name)
		}
	}
	return nil
}

// ProjectUser renders one user through the caller's privilege tier.
// Fields the caller may not see are silently absent rather than erroring,
// so a mixed-privilege batch still returns one row per user.
func (s *Service) ProjectUser(ctx context.Context, caller Caller, target *models.User, filter FieldFilter) (map[string]interface{}, error) {
	included := make(map[string]bool, len(filter.Include))
	for _, name := range filter.Include {
		included[name] = true
	}
	excluded := make(map[string]bool, len(filter.Exclude))
	for _, name := range filter.Exclude {
		excluded[name] = true
	}

	out := make(map[string]interface{})
	for _, spec := range fieldSpecs {
		if excluded[spec.name] {
			continue
		}
		if spec.explicitOnly && !included[spec.name] {
			continue
		}
		if !spec.allowed(s, caller, target) {
			continue
		}
		value, err := spec.value(s, ctx, caller, target)
		if err != nil {
			return nil, err
		}
		out[spec.name] = value
	}
	return out, nil
}
