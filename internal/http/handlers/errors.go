package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/http/dto"
	"github.com/remittance/backend/internal/middleware"
	"github.com/remittance/backend/internal/remittance"
	"go.uber.org/zap"
)

// ledgerStatus maps a ledger error to the HTTP status the API reports.
func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, remittance.ErrInvalidInput),
		errors.Is(err, remittance.ErrOverflow),
		errors.Is(err, remittance.ErrUnderflow):
		return fiber.StatusBadRequest
	case errors.Is(err, remittance.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, remittance.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, remittance.ErrAlreadyExists),
		errors.Is(err, remittance.ErrExpired),
		errors.Is(err, remittance.ErrNotYetDue):
		return fiber.StatusConflict
	case errors.Is(err, remittance.ErrLimitExceeded):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, remittance.ErrPaused):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// ledgerError writes err as a dto.ErrorResponse. Infrastructure failures
// are hidden behind a generic message.
func ledgerError(c *fiber.Ctx, err error, log *zap.Logger) error {
	status := ledgerStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("ledger request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
