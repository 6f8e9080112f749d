package handler

import (
	"encoding/json"
	"net/http"

	"github.com/vaibhav071104/vaultguard/internal/service"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Wallet — deposit, withdraw, transfer, balance, history
// All routes act on the authenticated user's own wallet.
// ============================================================

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

func depositHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wallet/deposit")
		defer span.End()

		var req amountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("amount", req.Amount.String()))

		txn, err := engine.Deposit(ctx, UserIDFromContext(ctx), req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

func withdrawHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wallet/withdraw")
		defer span.End()

		var req amountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("amount", req.Amount.String()))

		txn, err := engine.Withdraw(ctx, UserIDFromContext(ctx), req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

func transferHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wallet/transfer")
		defer span.End()

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.To == "" {
			writeError(w, http.StatusBadRequest, "to is required")
			return
		}
		span.SetAttributes(
			attribute.String("transfer.to", req.To),
			attribute.String("amount", req.Amount.String()),
		)

		txn, err := engine.Transfer(ctx, UserIDFromContext(ctx), req.To, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

func balanceHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/wallet/balance")
		defer span.End()

		wallet, err := engine.GetBalance(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, wallet)
	}
}

func historyHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/wallet/history")
		defer span.End()

		history, err := engine.GetHistory(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": history})
	}
}
