package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/http/dto"
	"github.com/remittance/backend/internal/middleware"
	"github.com/remittance/backend/internal/services"
	"github.com/remittance/backend/internal/ton"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// GeneratePayload создаёт nonce для TON Proof.
// POST /auth/ton-proof/payload
func (h *AuthHandler) GeneratePayload(c *fiber.Ctx) error {
	p, err := h.authService.GeneratePayload(c.UserContext())
	if err != nil {
		h.log.Error("failed to generate proof payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error", RequestID: middleware.GetRequestID(c)})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ProofPayloadResponse{Payload: p.Payload, ExpiresAt: p.ExpiresAt}})
}

// Login проверяет TON Proof и выдаёт JWT.
// POST /auth/ton-proof
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req ton.ProofData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.Proof.Signature == "" || req.Proof.Payload == "" {
		return badRequest(c, "address, proof.payload and proof.signature are required")
	}

	res, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidProof) {
			h.log.Debug("ton proof rejected", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
		}
		h.log.Error("ton proof login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: middleware.GetRequestID(c)})
	}

	return c.JSON(dto.AuthResponse{
		Token:     res.Token,
		Address:   res.Address.String(),
		ExpiresAt: res.ExpiresAt,
	})
}
