package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

// fail renders a classified error. Validation causes carry their
// field-level details into the body.
func fail(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.KindInternal, "internal error", err)
	}

	body := gin.H{
		"error": appErr.Msg,
		"kind":  string(appErr.Kind),
	}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	var details types.ValidationErrors
	if errors.As(appErr.Err, &details) && len(details) > 0 {
		body["details"] = details
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(appErr.Kind), body)
}

func pathID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		fail(c, apperr.Ef(apperr.KindBadRequest, "malformed %s", param))
		return uuid.Nil, false
	}
	return id, true
}

// listOptions builds pagination, sorting, and the filter map from query
// parameters. Reserved parameters never leak into the filter grammar;
// boolean-looking values are coerced so the typed filters compile.
func listOptions(c *gin.Context) storage.ListOptions {
	opts := storage.ListOptions{
		Filters:   map[string]interface{}{},
		SortField: c.Query("sort_field"),
		SortOrder: c.Query("sort_order"),
	}
	opts.Page, _ = strconv.Atoi(c.Query("page"))
	opts.Size, _ = strconv.Atoi(c.Query("size"))

	reserved := map[string]bool{
		"page": true, "size": true, "sort_field": true, "sort_order": true,
		"include_triggers": true, "hard_delete": true, "validate_triggers": true,
		"limit": true, "hours": true,
		"network_id": true, "monitor_id": true, "trigger_id": true, "window_hours": true,
	}
	for key, values := range c.Request.URL.Query() {
		if reserved[key] || len(values) == 0 {
			continue
		}
		value := values[0]
		switch strings.ToLower(value) {
		case "true":
			opts.Filters[key] = true
		case "false":
			opts.Filters[key] = false
		default:
			opts.Filters[key] = value
		}
	}
	return opts
}

func boolQuery(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func intQuery(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}

func created(c *gin.Context, body interface{}) {
	c.JSON(http.StatusCreated, body)
}
