package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/example/newport/internal/metrics"
	"github.com/example/newport/internal/services"
)

// PaymeHandler serves the Payme Merchant API webhook.
type PaymeHandler struct {
	payme *services.PaymeService
}

func NewPaymeHandler(payme *services.PaymeService) *PaymeHandler {
	return &PaymeHandler{payme: payme}
}

type paymeRPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

var paymeMethods = map[string]bool{
	"CheckPerformTransaction": true,
	"CreateTransaction":       true,
	"PerformTransaction":      true,
	"CancelTransaction":       true,
	"CheckTransaction":        true,
	"GetStatement":            true,
}

// Pay handles Payme JSON-RPC calls on /payme/pay. Every outcome, errors
// included, is answered with HTTP 200 and a JSON-RPC envelope.
func (h *PaymeHandler) Pay(c *fiber.Ctx) error {
	var req paymeRPCRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.WithError(err).Warn("[Payme] Failed to parse request body")
		return h.respond(c, req, nil, services.NewTransactionError(services.PaymeErrorParse))
	}

	log.WithFields(log.Fields{
		"method": req.Method,
		"id":     string(req.ID),
	}).Info("[Payme] Incoming call")

	result, err := h.dispatch(c.UserContext(), req)
	return h.respond(c, req, result, err)
}

// MethodNotAllowed answers non-POST requests to the webhook.
func (h *PaymeHandler) MethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, fiber.MethodPost)
	return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": "method-not-allowed", "message": "only POST is supported"},
	})
}

func (h *PaymeHandler) dispatch(ctx context.Context, req paymeRPCRequest) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", req.Method, r)
		}
	}()

	switch req.Method {
	case "CheckPerformTransaction":
		var params services.CheckPerformParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.payme.CheckPerformTransaction(ctx, params)
	case "CreateTransaction":
		var params services.CreateTransactionParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.payme.CreateTransaction(ctx, params)
	case "PerformTransaction":
		var params services.PerformTransactionParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.payme.PerformTransaction(ctx, params)
	case "CancelTransaction":
		var params services.CancelTransactionParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.payme.CancelTransaction(ctx, params)
	case "CheckTransaction":
		var params services.CheckTransactionParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.payme.CheckTransaction(ctx, params)
	case "GetStatement":
		var params services.StatementParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.payme.GetStatement(ctx, params)
	default:
		return nil, services.NewTransactionError(services.PaymeErrorMethodNotFound)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return services.NewTransactionError(services.PaymeErrorInvalidRequest)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return services.NewTransactionError(services.PaymeErrorInvalidRequest)
	}
	return nil
}

func (h *PaymeHandler) respond(c *fiber.Ctx, req paymeRPCRequest, result any, err error) error {
	method := req.Method
	if !paymeMethods[method] {
		method = "unknown"
	}

	if err != nil {
		var txErr *services.TransactionError
		if !errors.As(err, &txErr) {
			log.WithError(err).WithField("method", req.Method).Error("[Payme] Internal error")
			txErr = services.NewTransactionError(services.PaymeErrorInternal)
		}
		metrics.WebhookCallsTotal.WithLabelValues(method, strconv.Itoa(txErr.Info.Code)).Inc()
		return c.JSON(services.NewRPCError(req.ID, txErr))
	}

	metrics.WebhookCallsTotal.WithLabelValues(method, "0").Inc()
	return c.JSON(services.NewRPCResult(req.ID, result))
}
