// Dashboard HTTP handlers.
//
// This file exposes the operator API mounted under the API base path:
//   - GET  /routing                          (active route)
//   - PUT  /routing                          (replace route)
//   - GET  /validations                      (integration health)
//   - POST /validations/{integration}/check  (run a health check)
//   - GET  /events                           (audit log, ETag support)
//   - POST /relay/{message_sid}/replay       (re-run a failed relay)
package handlers

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
	"github.com/tbourn/wa-intercom-relay/internal/services"
	"github.com/tbourn/wa-intercom-relay/internal/utils"
)

//
// DTOs
//

// UpsertRoutingRequest is the JSON payload for replacing the route.
type UpsertRoutingRequest struct {
	NumberTo    string `json:"number_to"    binding:"required" example:"+15550000"`
	WorkspaceID string `json:"workspace_id" binding:"required" example:"abc123"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled" example:"true"`
}

// ListValidationsResponse wraps the integration health rows.
type ListValidationsResponse struct {
	Validations []domain.IntegrationValidation `json:"validations"`
}

// ListEventsResponse wraps a page of events, newest first. Total counts the
// whole log regardless of filters.
type ListEventsResponse struct {
	Events []domain.Event `json:"events"`
	Total  int64          `json:"total"`
}

//
// Handlers
//

// GetRouting godoc
// @ID          getRouting
// @Summary     Get the active route
// @Description Returns the first enabled routing record, else the first record.
// @Tags        Routing
// @Produce     json
// @Security    AdminToken
//
// @Success     200  {object}  domain.RoutingConfig
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Routing not configured"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /routing [get]
func (h *Handlers) GetRouting(c *gin.Context) {
	route, err := h.routing.Active(c.Request.Context())
	if err == nil && route == nil {
		err = services.ErrRoutingNotFound
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, route)
}

// PutRouting godoc
// @ID          putRouting
// @Summary     Replace the route
// @Description Stores a single routing record binding the WhatsApp number to an Intercom workspace. Any other records are removed.
// @Tags        Routing
// @Accept      json
// @Produce     json
// @Security    AdminToken
//
// @Param       body  body  handlers.UpsertRoutingRequest  true  "Routing payload"
//
// @Success     200  {object}  domain.RoutingConfig
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /routing [put]
func (h *Handlers) PutRouting(c *gin.Context) {
	var req UpsertRoutingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "number_to and workspace_id are required")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	route, err := h.routing.Upsert(c.Request.Context(), req.NumberTo, req.WorkspaceID, enabled)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, route)
}

// ListValidations godoc
// @ID          listValidations
// @Summary     List integration health
// @Tags        Validations
// @Produce     json
// @Security    AdminToken
//
// @Success     200  {object}  handlers.ListValidationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /validations [get]
func (h *Handlers) ListValidations(c *gin.Context) {
	rows, err := h.validations.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if rows == nil {
		rows = []domain.IntegrationValidation{}
	}
	ok(c, http.StatusOK, ListValidationsResponse{Validations: rows})
}

// CheckValidation godoc
// @ID          checkValidation
// @Summary     Run an integration health check
// @Description Twilio is checked against configuration only; Intercom calls GET /me with the access token.
// @Tags        Validations
// @Produce     json
// @Security    AdminToken
//
// @Param       integration  path  string  true  "Integration"  Enums(twilio, intercom)
//
// @Success     200  {object}  domain.IntegrationValidation
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown integration"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /validations/{integration}/check [post]
func (h *Handlers) CheckValidation(c *gin.Context) {
	integration := strings.ToLower(strings.TrimSpace(c.Param("integration")))
	row, err := h.validations.Check(c.Request.Context(), integration)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, row)
}

// ListEvents godoc
// @ID          listEvents
// @Summary     List relay events
// @Description Returns events newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Events
// @Produce     json
// @Security    AdminToken
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       limit          query   int     false  "Max events"  minimum(1) maximum(200) default(50)
// @Param       direction      query   string  false  "Direction filter"  Enums(twilio_to_intercom, intercom_to_twilio)
// @Param       status         query   string  false  "Status filter"     Enums(queued, ok, retrying, failed, dropped)
//
// @Success     200  {object}  handlers.ListEventsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events [get]
func (h *Handlers) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()

	f := repo.EventFilter{Limit: services.ClampEventsLimit(utils.AtoiDefault(c.Query("limit"), 0))}
	if v := c.Query("direction"); v != "" {
		if utils.OneOf(v, string(domain.DirectionTwilioToIntercom), string(domain.DirectionIntercomToTwilio)) == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown direction")
			return
		}
		f.Direction = domain.Direction(v)
	}
	if v := c.Query("status"); v != "" {
		if utils.OneOf(v,
			string(domain.EventQueued), string(domain.EventOK), string(domain.EventRetrying),
			string(domain.EventFailed), string(domain.EventDropped)) == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status")
			return
		}
		f.Status = domain.EventStatus(v)
	}

	total, _, err := h.events.Stats(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	items, err := h.events.List(ctx, f)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Event{}
	}
	resp := ListEventsResponse{Events: items, Total: total}

	// Events are patched in place when their outcome lands, so the tag hashes
	// the page rather than relying on count and newest timestamp alone.
	body, err := json.Marshal(resp)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	sum := fnv.New64a()
	_, _ = sum.Write(body)
	etag := fmt.Sprintf(`W/"events:%d:%x"`, total, sum.Sum64())
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// ReplayMessage godoc
// @ID          replayMessage
// @Summary     Replay a relay
// @Description Re-queues the durable relay job of a Twilio message whose last attempt failed.
// @Tags        Relay
// @Produce     json
// @Security    AdminToken
//
// @Param       message_sid  path  string  true  "Twilio MessageSid or synthesized key"
//
// @Success     202  {object}  domain.Event  "Retrying event"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "No relay job for message"
// @Failure     409  {object}  handlers.ErrorResponse  "Already relayed or in progress"
// @Failure     503  {object}  handlers.ErrorResponse  "Dispatcher stopped"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /relay/{message_sid}/replay [post]
func (h *Handlers) ReplayMessage(c *gin.Context) {
	sid := strings.TrimSpace(c.Param("message_sid"))
	ev, err := h.replayer.Replay(c.Request.Context(), sid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusAccepted, ev)
}
