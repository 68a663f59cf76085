package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/http/dto"
	"github.com/remittance/backend/internal/middleware"
	"github.com/remittance/backend/internal/services"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

// AdminHandler exposes the owner operations. Ownership is checked by the
// ledger, so a non-owner token gets 403 from there.
type AdminHandler struct {
	svc *services.RemittanceService
	log *zap.Logger
}

func NewAdminHandler(svc *services.RemittanceService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, log: log}
}

// AdjustFee: PUT /admin/fee
func (h *AdminHandler) AdjustFee(c *fiber.Ctx) error {
	var req dto.AdjustFeeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	fee := req.FeeNano
	if req.FeeTON != "" {
		nano, err := ton.ParseTON(req.FeeTON)
		if err != nil {
			return badRequest(c, err.Error())
		}
		fee = nano
	}
	ev, err := h.svc.AdjustFee(c.UserContext(), middleware.GetAddress(c), fee)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}

// AdjustThresholdFee: PUT /admin/fee-threshold
func (h *AdminHandler) AdjustThresholdFee(c *fiber.Ctx) error {
	var req dto.AdjustThresholdRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ev, err := h.svc.AdjustThresholdFee(c.UserContext(), middleware.GetAddress(c), req.Ratio)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}

// WithdrawFees: POST /admin/fees/withdraw
func (h *AdminHandler) WithdrawFees(c *fiber.Ctx) error {
	ev, err := h.svc.WithdrawFees(c.UserContext(), middleware.GetAddress(c))
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}

// Pause: POST /admin/pause
func (h *AdminHandler) Pause(c *fiber.Ctx) error {
	return h.setRunning(c, false)
}

// Resume: POST /admin/resume
func (h *AdminHandler) Resume(c *fiber.Ctx) error {
	return h.setRunning(c, true)
}

func (h *AdminHandler) setRunning(c *fiber.Ctx, running bool) error {
	ev, err := h.svc.SetRunning(c.UserContext(), middleware.GetAddress(c), running)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}
