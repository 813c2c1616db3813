package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"btcarts/internal/service"
)

// ListApplications returns applications newest first.
//
// @Summary  List applications
// @Tags     applications
// @Produce  json
// @Param    limit   query  int  false  "Page size (default 20, max 100)"
// @Param    offset  query  int  false  "Offset"
// @Success  200  {object}  service.ApplicationListResult
// @Failure  400  {object}  errorPayload
// @Router   /api/admin/applications [get]
func ListApplications(svc service.ApplicationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(service.DefaultListLimit)))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return applicationError(c, err)
		}
		return c.JSON(res)
	}
}

// GetApplication returns one application.
//
// @Summary  Get application
// @Tags     applications
// @Produce  json
// @Param    id  path  string  true  "Application id"
// @Success  200  {object}  model.Application
// @Failure  400  {object}  errorPayload
// @Failure  404  {object}  errorPayload
// @Router   /api/admin/applications/{id} [get]
func GetApplication(svc service.ApplicationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		app, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return applicationError(c, err)
		}
		return c.JSON(app)
	}
}

// UpdateApplication applies an admin edit.
//
// @Summary  Update application
// @Tags     applications
// @Accept   json
// @Produce  json
// @Param    id    path  string                   true  "Application id"
// @Param    body  body  service.ApplicationPatch true  "Fields to change"
// @Success  200  {object}  model.Application
// @Failure  400  {object}  errorPayload
// @Failure  404  {object}  errorPayload
// @Router   /api/admin/applications/{id} [patch]
func UpdateApplication(svc service.ApplicationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var patch service.ApplicationPatch
		if err := decodeJSON(c.Body(), &patch); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		}
		app, err := svc.Update(c.UserContext(), c.Params("id"), patch)
		if err != nil {
			return applicationError(c, err)
		}
		return c.JSON(app)
	}
}

var errTrailingData = errors.New("trailing data after JSON body")

type issueShareRequest struct {
	TTLHours *int `json:"ttlHours,omitempty"`
}

// IssueReviewShare creates a time-limited reviewer link set.
//
// @Summary  Issue review share
// @Tags     applications
// @Accept   json
// @Produce  json
// @Param    id    path  string             true   "Application id"
// @Param    body  body  issueShareRequest  false  "Lifetime in hours (default 336)"
// @Success  201  {object}  service.IssuedShare
// @Failure  400  {object}  errorPayload
// @Failure  404  {object}  errorPayload
// @Failure  409  {object}  errorPayload
// @Router   /api/admin/applications/{id}/review-shares [post]
func IssueReviewShare(svc service.ApplicationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req issueShareRequest
		if body := bytes.TrimSpace(c.Body()); len(body) > 0 {
			if err := decodeJSON(body, &req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
			}
		}
		issued, err := svc.IssueReviewShare(c.UserContext(), c.Params("id"), req.TTLHours)
		if err != nil {
			return applicationError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(issued)
	}
}

// decodeJSON decodes exactly one JSON value; unknown fields and trailing
// data are errors.
func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}
	return nil
}

// applicationError translates service errors to safe HTTP responses.
func applicationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	case errors.Is(err, service.ErrApplicationNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "application not found")
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrNotesTooLong),
		errors.Is(err, service.ErrAwardedAtNoAward),
		errors.Is(err, service.ErrReportNotAwarded),
		errors.Is(err, service.ErrReportWithAward):
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrShareLimitReached):
		return writeError(c, fiber.StatusConflict, "SHARE_LIMIT_REACHED", "too many active review shares")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
