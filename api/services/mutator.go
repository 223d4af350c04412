package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/internal/events"
	"github.com/trackhive/user-services/models"
)

// GroupDelta names membership changes. Set replaces the current list and
// is mutually exclusive with Add/Remove for the same field.
type GroupDelta struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
	Set    []string `json:"set,omitempty"`
}

// UserUpdates is the field-update map applied to every target.
type UserUpdates struct {
	Login          *string     `json:"login,omitempty"`
	DisplayName    *string     `json:"real_name,omitempty"`
	DisabledReason *string     `json:"login_denied_text,omitempty"`
	Password       *string     `json:"password,omitempty"`
	EmailEnabled   *bool       `json:"email_enabled,omitempty"`
	Groups         *GroupDelta `json:"groups,omitempty"`
	BlessGroups    *GroupDelta `json:"bless_groups,omitempty"`
}

// UpdateParams identifies the targets and carries the update map.
type UpdateParams struct {
	IDs     []int64     `json:"ids,omitempty"`
	Names   []string    `json:"names,omitempty"`
	Updates UserUpdates `json:"updates"`
}

// UpdateUsers applies one field-update map to every resolved target in a
// single transaction and reports per-field change records. Membership
// removals the caller cannot bless are silently retained; everything else
// either fully commits or fully rolls back.
func (s *Service) UpdateUsers(ctx context.Context, caller Caller, p UpdateParams) ([]models.UserChangeRecord, error) {
	if !caller.Authenticated() || !caller.InGroup(GroupEditUsers) {
		return nil, apperr.AccessDenied("you are not authorized to edit users")
	}
	if len(p.IDs) == 0 && len(p.Names) == 0 {
		return nil, apperr.MissingParameter("at least one of ids or names must be given")
	}

	targets, _, err := s.ResolveUsers(ctx, caller, ResolveParams{
		Names:           p.Names,
		IDs:             p.IDs,
		IncludeDisabled: true,
	})
	if err != nil {
		return nil, err
	}

	if p.Updates.Login != nil && len(targets) > 1 {
		return nil, apperr.UnsupportedBatchOperation("login can only be changed for one user at a time")
	}
	if p.Updates.Login != nil {
		if err := s.checkNewLogin(ctx, *p.Updates.Login); err != nil {
			return nil, err
		}
	}

	var credentialHash *string
	if p.Updates.Password != nil {
		min := s.Config.Auth.MinPasswordLength
		if len(*p.Updates.Password) < min {
			return nil, apperr.PasswordTooShort(min)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*p.Updates.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		h := string(hash)
		credentialHash = &h
	}

	groupDelta, err := s.resolveGroupDelta(ctx, p.Updates.Groups)
	if err != nil {
		return nil, err
	}
	blessDelta, err := s.resolveGroupDelta(ctx, p.Updates.BlessGroups)
	if err != nil {
		return nil, err
	}

	updates := make([]models.UserUpdate, 0, len(targets))
	records := make([]models.UserChangeRecord, 0, len(targets))
	published := make([]events.UserEvent, 0, len(targets))

	for i := range targets {
		target := &targets[i]
		memberships, err := s.DB.GetMemberships(ctx, target.ID)
		if err != nil {
			return nil, err
		}

		update := models.UserUpdate{UserID: target.ID}
		changes := make(map[string]models.FieldDelta)

		if p.Updates.Login != nil && *p.Updates.Login != target.Login {
			update.SetLogin = p.Updates.Login
			changes["login"] = models.FieldDelta{Removed: target.Login, Added: *p.Updates.Login}
		}
		if p.Updates.DisplayName != nil && *p.Updates.DisplayName != target.DisplayName {
			update.SetDisplayName = p.Updates.DisplayName
			changes["real_name"] = models.FieldDelta{Removed: target.DisplayName, Added: *p.Updates.DisplayName}
		}
		if p.Updates.DisabledReason != nil && *p.Updates.DisabledReason != target.DisabledReason {
			update.SetDisabledReason = p.Updates.DisabledReason
			changes["login_denied_text"] = models.FieldDelta{Removed: target.DisabledReason, Added: *p.Updates.DisabledReason}
		}
		if p.Updates.EmailEnabled != nil && *p.Updates.EmailEnabled != target.EmailEnabled {
			update.SetEmailEnabled = p.Updates.EmailEnabled
			changes["email_enabled"] = models.FieldDelta{
				Removed: strconv.FormatBool(target.EmailEnabled),
				Added:   strconv.FormatBool(*p.Updates.EmailEnabled),
			}
		}
		if credentialHash != nil {
			// The change record deliberately omits credential material.
			update.SetCredentialHash = credentialHash
		}

		if groupDelta != nil {
			adds, removes := membershipChanges(caller, memberships, groupDelta, func(m models.Membership) bool {
				return true
			})
			update.GroupAdds = groupIDs(adds)
			update.GroupRemoves = groupIDs(removes)
			if delta := groupChangeDelta(adds, removes); delta != nil {
				changes["groups"] = *delta
			}
		}
		if blessDelta != nil {
			adds, removes := membershipChanges(caller, memberships, blessDelta, func(m models.Membership) bool {
				return m.CanBless
			})
			update.BlessAdds = groupIDs(adds)
			update.BlessRemoves = groupIDs(removes)
			if delta := groupChangeDelta(adds, removes); delta != nil {
				changes["bless_groups"] = *delta
			}
		}

		updates = append(updates, update)
		records = append(records, models.UserChangeRecord{ID: target.ID, Changes: changes})
		published = append(published, events.UserEvent{
			UserID:  target.ID,
			Login:   target.Login,
			Action:  "update",
			Changes: changes,
		})
	}

	if err := s.DB.ApplyUserUpdates(ctx, updates); err != nil {
		return nil, err
	}

	if s.Publisher != nil {
		for _, event := range published {
			if err := s.Publisher.Publish(event); err != nil {
				return nil, err
			}
		}
	}

	return records, nil
}

// checkNewLogin validates format and uniqueness for a login rename.
func (s *Service) checkNewLogin(ctx context.Context, login string) error {
	if !IsValidEmail(login) {
		return apperr.InvalidEmailFormat(login)
	}
	existing, err := s.DB.GetUserByLogin(ctx, login)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.AccountExists(login)
	}
	return nil
}

// resolvedDelta is a group delta with names resolved to records.
type resolvedDelta struct {
	add    []models.Group
	remove []models.Group
	set    []models.Group
	hasSet bool
}

func (s *Service) resolveGroupDelta(ctx context.Context, delta *GroupDelta) (*resolvedDelta, error) {
	if delta == nil {
		return nil, nil
	}
	resolve := func(names []string) ([]models.Group, error) {
		groups := make([]models.Group, 0, len(names))
		for _, name := range names {
			group, err := s.DB.GetGroupByName(ctx, name)
			if err != nil {
				return nil, err
			}
			if group == nil {
				return nil, apperr.InvalidGroupReference("there is no group named '%s'", name)
			}
			groups = append(groups, *group)
		}
		return groups, nil
	}

	out := &resolvedDelta{hasSet: delta.Set != nil}
	var err error
	if out.add, err = resolve(delta.Add); err != nil {
		return nil, err
	}
	if out.remove, err = resolve(delta.Remove); err != nil {
		return nil, err
	}
	if out.set, err = resolve(delta.Set); err != nil {
		return nil, err
	}
	return out, nil
}

// membershipChanges turns a resolved delta into concrete add and remove
// lists for one target. With set semantics, adds are the desired groups
// the target lacks and removes are current groups absent from the desired
// set. Removals the caller lacks bless rights on are dropped, so those
// memberships survive the update. The has predicate selects which current
// memberships count (plain membership vs. bless rights).
func membershipChanges(caller Caller, memberships []models.Membership, delta *resolvedDelta, has func(models.Membership) bool) (adds, removes []models.Group) {
	current := make(map[int64]models.Group)
	for _, m := range memberships {
		if has(m) {
			current[m.Group.ID] = m.Group
		}
	}

	var wantAdd, wantRemove []models.Group
	if delta.hasSet {
		desired := make(map[int64]bool, len(delta.set))
		for _, g := range delta.set {
			desired[g.ID] = true
			if _, ok := current[g.ID]; !ok {
				wantAdd = append(wantAdd, g)
			}
		}
		for _, g := range current {
			if !desired[g.ID] {
				wantRemove = append(wantRemove, g)
			}
		}
	} else {
		for _, g := range delta.add {
			if _, ok := current[g.ID]; !ok {
				wantAdd = append(wantAdd, g)
			}
		}
		for _, g := range delta.remove {
			if _, ok := current[g.ID]; ok {
				wantRemove = append(wantRemove, g)
			}
		}
	}

	adds = wantAdd
	for _, g := range wantRemove {
		if caller.CanBless(g.ID) {
			removes = append(removes, g)
		}
	}
	sort.Slice(adds, func(i, j int) bool { return adds[i].Name < adds[j].Name })
	sort.Slice(removes, func(i, j int) bool { return removes[i].Name < removes[j].Name })
	return adds, removes
}

func groupIDs(groups []models.Group) []int64 {
	if len(groups) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// groupChangeDelta flattens membership changes into the comma-joined
// removed/added form used by change records.
func groupChangeDelta(adds, removes []models.Group) *models.FieldDelta {
	if len(adds) == 0 && len(removes) == 0 {
		return nil
	}
	names := func(groups []models.Group) string {
		parts := make([]string, 0, len(groups))
		for _, g := range groups {
			parts = append(parts, g.Name)
		}
		return strings.Join(parts, ",")
	}
	return &models.FieldDelta{Removed: names(removes), Added: names(adds)}
}
