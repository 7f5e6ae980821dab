package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/rs/zerolog"
)

// Health returns a simple liveness check: the process is up and serving.
func Health(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

// Ready checks that the permit store is reachable before the router
// accepts traffic; it does not check per-chain RPC connectivity, since a
// single unreachable chain should not take the whole service out of
// rotation (agents on other chains still work).
func Ready(st store.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if _, err := st.ListPendingCrossChainPayments(r.Context()); err != nil {
			logger.Error().Err(err).Msg("store readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"reason": "store unavailable",
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ready",
		})
	}
}
