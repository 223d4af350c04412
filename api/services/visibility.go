package services

import (
	"context"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/models"
)

// FilterByGroups restricts a resolved user set to members of at least one
// constrained group. Ids and names form one union with OR semantics. Each
// referenced group must exist and the caller must already belong to it;
// an empty result is not an error.
func (s *Service) FilterByGroups(ctx context.Context, caller Caller, users []models.User, groupIDs []int64, groupNames []string) ([]models.User, error) {
	if len(groupIDs) == 0 && len(groupNames) == 0 {
		return users, nil
	}

	constraint := make([]int64, 0, len(groupIDs)+len(groupNames))
	seen := make(map[int64]bool)

	appendGroup := func(g models.Group) error {
		if !caller.InGroupID(g.ID) {
			return apperr.InvalidGroupReference("you are not a member of group '%s'", g.Name)
		}
		if !seen[g.ID] {
			seen[g.ID] = true
			constraint = append(constraint, g.ID)
		}
		return nil
	}

	for _, name := range groupNames {
		group, err := s.DB.GetGroupByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, apperr.InvalidGroupReference("there is no group named '%s'", name)
		}
		if err := appendGroup(*group); err != nil {
			return nil, err
		}
	}

	if len(groupIDs) > 0 {
		groups, err := s.DB.GetGroupsByIDs(ctx, groupIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]models.Group, len(groups))
		for _, g := range groups {
			byID[g.ID] = g
		}
		for _, id := range groupIDs {
			group, ok := byID[id]
			if !ok {
				return nil, apperr.InvalidGroupReference("there is no group with id %d", id)
			}
			if err := appendGroup(group); err != nil {
				return nil, err
			}
		}
	}

	filtered := make([]models.User, 0, len(users))
	for _, u := range users {
		member, err := s.DB.UserInAnyGroup(ctx, u.ID, constraint)
		if err != nil {
			return nil, err
		}
		if member {
			filtered = append(filtered, u)
		}
	}
	return filtered, nil
}

// DisclosableGroups decides which of a target's memberships the caller
// may see. Self-views and holders of the see-all privilege get the full
// list; otherwise a group is disclosed only to user managers or to
// callers holding bless rights on that specific group. Undisclosable
// groups are silently omitted.
func (s *Service) DisclosableGroups(caller Caller, target *models.User, memberships []models.Membership) []models.Group {
	groups := make([]models.Group, 0, len(memberships))

	if caller.Self(target.ID) || caller.InGroup(GroupSeeAllGroups) {
		for _, m := range memberships {
			groups = append(groups, m.Group)
		}
		return groups
	}

	manager := caller.InGroup(GroupEditUsers)
	for _, m := range memberships {
		if manager || caller.CanBless(m.Group.ID) {
			groups = append(groups, m.Group)
		}
	}
	return groups
}
