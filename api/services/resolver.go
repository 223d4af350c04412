package services

import (
	"context"
	"strconv"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/internal/match"
	"github.com/trackhive/user-services/models"
)

// ResolveParams carries the identifier sources for one resolution. At
// least one of Names, IDs or Match must be present.
type ResolveParams struct {
	Names           []string
	IDs             []int64
	Match           []string
	IncludeDisabled bool
	Limit           int
	Permissive      bool
}

// ResolveUsers translates caller-supplied identifiers and search text
// into a deduplicated set of user records.
//
// Login names resolve by exact case-insensitive match; a miss aborts with
// NotFound unless Permissive is set, in which case it is recorded as a
// fault and resolution continues. Ids and match tokens are reserved for
// authenticated callers. The match cap applies per token; each token runs
// its own capped search before the results merge into the set.
func (s *Service) ResolveUsers(ctx context.Context, caller Caller, p ResolveParams) ([]models.User, []models.Fault, error) {
	if len(p.Names) == 0 && len(p.IDs) == 0 && len(p.Match) == 0 {
		return nil, nil, apperr.MissingParameter("at least one of ids, names or match must be given")
	}

	var resolved []models.User
	var faults []models.Fault
	seen := make(map[int64]bool)

	add := func(u models.User) {
		if !seen[u.ID] {
			seen[u.ID] = true
			resolved = append(resolved, u)
		}
	}

	for _, name := range p.Names {
		user, err := s.DB.GetUserByLogin(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if user == nil {
			if p.Permissive {
				faults = append(faults, models.Fault{
					Token:   name,
					Message: "there is no user named '" + name + "'",
				})
				continue
			}
			return nil, nil, apperr.NotFound("there is no user named '%s'", name)
		}
		add(*user)
	}

	if len(p.IDs) > 0 {
		if !caller.Authenticated() {
			return nil, nil, apperr.AccessDenied("logged-out users cannot look up users by id")
		}
		for _, id := range p.IDs {
			user, err := s.DB.GetUserByID(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			if user == nil {
				if p.Permissive {
					faults = append(faults, models.Fault{
						Token:   strconv.FormatInt(id, 10),
						Message: "there is no user with id " + strconv.FormatInt(id, 10),
					})
					continue
				}
				return nil, nil, apperr.NotFound("there is no user with id %d", id)
			}

			visible, err := s.canSeeUser(ctx, caller, user)
			if err != nil {
				return nil, nil, err
			}
			if !visible {
				return nil, nil, apperr.AccessDenied("you are not authorized to access user id %d", id)
			}
			add(*user)
		}
	}

	if len(p.Match) > 0 {
		if !caller.Authenticated() {
			return nil, nil, apperr.AccessDenied("logged-out users cannot use match searches")
		}

		limit := s.matchLimit(p.Limit)
		for _, token := range p.Match {
			q := match.Classify(token)
			if q.Prefix == "" {
				continue
			}

			users, err := s.DB.MatchUsers(ctx, q, limit, p.IncludeDisabled)
			if err != nil {
				return nil, nil, err
			}
			for _, u := range users {
				add(u)
			}
		}
	}

	return resolved, faults, nil
}

// matchLimit applies the installation cap: the default when the caller
// gave no limit, the caller's value otherwise, never above the maximum.
func (s *Service) matchLimit(requested int) int {
	limit := s.Config.Auth.DefaultMatchLimit
	if requested > 0 {
		limit = requested
	}
	if max := s.Config.Auth.MaxMatchLimit; limit > max {
		limit = max
	}
	return limit
}

// canSeeUser is the id-resolution visibility predicate: everyone is
// visible unless the installation configured a hidden group, in which
// case its members are only visible to callers sharing that group.
func (s *Service) canSeeUser(ctx context.Context, caller Caller, target *models.User) (bool, error) {
	name := s.Config.Auth.HiddenGroup
	if name == "" {
		return true, nil
	}

	group, err := s.DB.GetGroupByName(ctx, name)
	if err != nil {
		return false, err
	}
	if group == nil {
		return true, nil
	}

	hidden, err := s.DB.UserInAnyGroup(ctx, target.ID, []int64{group.ID})
	if err != nil {
		return false, err
	}
	if !hidden {
		return true, nil
	}

	return caller.InGroupID(group.ID), nil
}
