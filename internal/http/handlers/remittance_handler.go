package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/http/dto"
	"github.com/remittance/backend/internal/middleware"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/services"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

type RemittanceHandler struct {
	svc *services.RemittanceService
	cfg *config.Config
	now func() time.Time
	log *zap.Logger
}

func NewRemittanceHandler(svc *services.RemittanceService, cfg *config.Config, log *zap.Logger) *RemittanceHandler {
	return &RemittanceHandler{svc: svc, cfg: cfg, now: time.Now, log: log}
}

// GetLedger returns fee policy, fee pool and the running flag.
// GET /ledger
func (h *RemittanceHandler) GetLedger(c *fiber.Ctx) error {
	st, err := h.svc.State(c.UserContext())
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewLedgerResponse(st, h.cfg.TONHotWalletAddress, h.cfg.DepositCommentPrefix)})
}

// GetPayment returns a pending payment. Settled payments are not found.
// GET /payments/:code
func (h *RemittanceHandler) GetPayment(c *fiber.Ctx) error {
	code, err := remittance.ParseHash(c.Params("code"))
	if err != nil {
		return badRequest(c, "invalid secure code")
	}
	p, err := h.svc.Payment(c.UserContext(), code)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewPaymentResponse(p, h.now())})
}

// GetPaymentEvents returns the event history of one secure code.
// GET /payments/:code/events?limit=
func (h *RemittanceHandler) GetPaymentEvents(c *fiber.Ctx) error {
	code, err := remittance.ParseHash(c.Params("code"))
	if err != nil {
		return badRequest(c, "invalid secure code")
	}
	limit := defaultEventsLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxEventsLimit)
		}
	}
	evs, err := h.svc.Events(c.UserContext(), code, limit)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	if evs == nil {
		evs = []remittance.Event{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: evs})
}

// Withdraw pays a pending payment out to the authenticated exchange.
// POST /payments/withdraw
func (h *RemittanceHandler) Withdraw(c *fiber.Ctx) error {
	var req dto.WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	rc, err := remittance.ParseHash(req.RetrievalCode)
	if err != nil {
		return badRequest(c, "invalid retrieval_code")
	}
	ev, err := h.svc.Withdraw(c.UserContext(), middleware.GetAddress(c), rc)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}

// Reclaim returns an expired payment to its sender.
// POST /payments/:code/reclaim
func (h *RemittanceHandler) Reclaim(c *fiber.Ctx) error {
	code, err := remittance.ParseHash(c.Params("code"))
	if err != nil {
		return badRequest(c, "invalid secure code")
	}
	ev, err := h.svc.Reclaim(c.UserContext(), middleware.GetAddress(c), code)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}

// ExtendExpiry pushes a payment's expiry forward.
// POST /payments/:code/extend
func (h *RemittanceHandler) ExtendExpiry(c *fiber.Ctx) error {
	code, err := remittance.ParseHash(c.Params("code"))
	if err != nil {
		return badRequest(c, "invalid secure code")
	}
	var req dto.ExtendExpiryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ev, err := h.svc.ExtendExpiry(c.UserContext(), middleware.GetAddress(c), code, req.ExtraSeconds)
	if err != nil {
		return ledgerError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ev})
}

// RetrievalCode derives the retrieval code from the secret. Clients
// can compute it themselves; the endpoint exists for thin clients.
// POST /codes/retrieval
func (h *RemittanceHandler) RetrievalCode(c *fiber.Ctx) error {
	var req dto.RetrievalCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	secret := req.Secret + strings.Join(req.Fragments, "")
	if secret == "" {
		return badRequest(c, "secret is required")
	}
	rc := remittance.RetrievalCodeFromStrings(secret)
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.CodeResponse{Code: rc.Hex()}})
}

// SecureCode binds a retrieval code to the exchange that may claim it.
// POST /codes/secure
func (h *RemittanceHandler) SecureCode(c *fiber.Ctx) error {
	var req dto.SecureCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	claimant, err := ton.ParseAddress(req.Claimant)
	if err != nil || claimant.IsZero() {
		return badRequest(c, "invalid claimant address")
	}
	rc, err := remittance.ParseHash(req.RetrievalCode)
	if err != nil {
		return badRequest(c, "invalid retrieval_code")
	}
	code := remittance.SecureCode(claimant, rc)
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.CodeResponse{Code: code.Hex()}})
}
