package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"btcarts/internal/service"
)

// Delivery variants used as metric labels.
const (
	VariantAdmin  = "admin"
	VariantReview = "review"

	outcomeOK    = "ok"
	outcomeError = "error"
)

// AdminFile streams any upload to an authenticated admin.
//
// @Summary  Download an upload (admin)
// @Tags     files
// @Produce  octet-stream
// @Param    id  path  string  true  "File id (24 hex)"
// @Success  200
// @Failure  400  {object}  errorPayload
// @Failure  401  {object}  errorPayload
// @Failure  404  {object}  errorPayload
// @Router   /api/grants/files/{id} [get]
func AdminFile(svc service.FileDeliveryService, rec DeliveryRecorder, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Params alias the request buffer, which fasthttp reuses once the
		// handler returns; the id outlives it in spans and logs.
		d, err := svc.AdminFile(c.UserContext(), utils.CopyString(c.Params("id")))
		if err != nil {
			return deliveryFailure(c, rec, log, VariantAdmin, err)
		}
		rec.ObserveDelivery(VariantAdmin, outcomeOK)
		return sendDelivery(c, d)
	}
}

// ReviewFile streams an upload to the holder of a review share token.
//
// @Summary  Download an upload with a review link
// @Tags     files
// @Produce  octet-stream
// @Param    token   path  string  true  "Review token"
// @Param    fileId  path  string  true  "File id (24 hex)"
// @Success  200
// @Failure  400  {object}  errorPayload
// @Failure  404  {object}  errorPayload
// @Failure  429  {object}  errorPayload
// @Router   /api/review/files/{token}/{fileId} [get]
func ReviewFile(svc service.FileDeliveryService, rec DeliveryRecorder, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := utils.CopyString(c.Params("token"))
		fileID := utils.CopyString(c.Params("fileId"))
		d, err := svc.ReviewFile(c.UserContext(), token, fileID)
		if err != nil {
			return deliveryFailure(c, rec, log, VariantReview, err)
		}
		rec.ObserveDelivery(VariantReview, outcomeOK)
		return sendDelivery(c, d)
	}
}

// sendDelivery writes headers and hands the body to fasthttp, which streams it
// and closes it when done or when the client goes away.
func sendDelivery(c *fiber.Ctx, d *service.Delivery) error {
	c.Set(fiber.HeaderContentType, d.Info.ContentType())
	c.Set(fiber.HeaderContentDisposition, d.Info.ContentDisposition())
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")

	size := -1
	if d.Info.HasLength() {
		size = int(d.Info.Length)
	}
	return c.Status(fiber.StatusOK).SendStream(d.Body, size)
}

// deliveryFailure logs the precise reason and answers with a deliberately
// coarse status: 400 for malformed input, 404 for everything else refused.
func deliveryFailure(c *fiber.Ctx, rec DeliveryRecorder, log *slog.Logger, variant string, err error) error {
	rid := requestIDFromCtx(c)

	var de *service.DeliveryError
	if !errors.As(err, &de) {
		rec.ObserveDelivery(variant, outcomeError)
		log.Error("file_delivery_failed",
			slog.String("request_id", rid),
			slog.String("variant", variant),
			slog.String("error", err.Error()),
		)
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	rec.ObserveDelivery(variant, string(de.Reason))
	log.Info("file_delivery_refused",
		slog.String("request_id", rid),
		slog.String("variant", variant),
		slog.String("reason", string(de.Reason)),
	)

	switch de.Reason {
	case service.ReasonInvalidToken:
		return writeError(c, fiber.StatusBadRequest, "INVALID_TOKEN", "invalid token format")
	case service.ReasonInvalidFileID:
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	default:
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
	}
}
