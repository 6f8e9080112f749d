package handler

import (
	"net/http"

	"github.com/vaibhav071104/vaultguard/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Admin — fraud report, aggregates, soft deletes
// ============================================================

func flaggedHandler(reporting *service.ReportingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/flagged")
		defer span.End()

		flagged, err := reporting.ListFlagged(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":        len(flagged),
			"transactions": flagged,
		})
	}
}

func totalBalanceHandler(reporting *service.ReportingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/total-balance")
		defer span.End()

		total, err := reporting.TotalBalance(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"total_balance": total})
	}
}

func topWalletsHandler(reporting *service.ReportingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/top-wallets")
		defer span.End()

		wallets, err := reporting.TopWallets(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
	}
}

func statsHandler(reporting *service.ReportingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/stats")
		defer span.End()

		writeJSON(w, http.StatusOK, reporting.Stats(ctx))
	}
}

func deleteUserHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/users/{userId}")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		if err := engine.SoftDeleteAccountOwner(ctx, userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteTransactionHandler(engine *service.LedgerEngine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/transactions/{txnId}")
		defer span.End()

		txnID := chi.URLParam(r, "txnId")
		if err := engine.SoftDeleteTransaction(ctx, txnID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
