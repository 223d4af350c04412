package services

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/models"
)

// GetUsersService resolves, filters and projects users. Query parameters:
// ids, names, match, group_ids and groups are comma-separated lists;
// include_disabled and permissive are booleans; limit caps match results;
// include_fields and exclude_fields shape the projection.
func GetUsersService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	caller, err := svc.CallerFromRequest(r)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve caller")
		HandleErrResponse(w, err)
		return
	}

	query := r.URL.Query()

	ids, err := parseIDList(query, "ids")
	if err != nil {
		HandleErrResponse(w, err)
		return
	}
	groupIDs, err := parseIDList(query, "group_ids")
	if err != nil {
		HandleErrResponse(w, err)
		return
	}
	limit, err := parseLimit(query)
	if err != nil {
		HandleErrResponse(w, err)
		return
	}

	filter := FieldFilter{
		Include: parseList(query, "include_fields"),
		Exclude: parseList(query, "exclude_fields"),
	}
	if err := validateFieldFilter(filter); err != nil {
		HandleErrResponse(w, err)
		return
	}

	params := ResolveParams{
		Names:           parseList(query, "names"),
		IDs:             ids,
		Match:           parseList(query, "match"),
		IncludeDisabled: parseBool(query, "include_disabled"),
		Limit:           limit,
		Permissive:      parseBool(query, "permissive"),
	}

	users, faults, err := svc.ResolveUsers(r.Context(), caller, params)
	if err != nil {
		HandleErrResponse(w, err)
		return
	}

	users, err = svc.FilterByGroups(r.Context(), caller, users, groupIDs, parseList(query, "groups"))
	if err != nil {
		HandleErrResponse(w, err)
		return
	}

	projected := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		record, err := svc.ProjectUser(r.Context(), caller, &users[i], filter)
		if err != nil {
			HandleErrResponse(w, err)
			return
		}
		projected = append(projected, record)
	}

	if faults == nil {
		faults = []models.Fault{}
	}

	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data: map[string]interface{}{
			"users":  projected,
			"faults": faults,
		},
	})
}

// UpdateUsersService applies a batch account mutation.
func UpdateUsersService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	caller, err := svc.CallerFromRequest(r)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve caller")
		HandleErrResponse(w, err)
		return
	}

	var params UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		HandleErrResponse(w, apperr.MissingParameter("request body must be a JSON object"))
		return
	}

	records, err := svc.UpdateUsers(r.Context(), caller, params)
	if err != nil {
		HandleErrResponse(w, err)
		return
	}

	logger.Info().Int("targets", len(records)).Msg("Users updated")

	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data:    map[string]interface{}{"users": records},
	})
}

// parseList splits a comma-separated query parameter, accepting repeats.
func parseList(query url.Values, key string) []string {
	var out []string
	for _, raw := range query[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseIDList(query url.Values, key string) ([]int64, error) {
	parts := parseList(query, key)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, apperr.MissingParameter("'%s' is not a valid numeric id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseBool(query url.Values, key string) bool {
	switch strings.ToLower(query.Get(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseLimit(query url.Values) (int, error) {
	raw := query.Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, apperr.MissingParameter("'%s' is not a valid limit", raw)
	}
	return limit, nil
}
