package router

import "net/http"

// Routes registers every endpoint this package owns onto mux. Callers wrap
// the returned handlers with whatever middleware chain (auth, logging,
// metrics, ...) the deployment needs; the router-call endpoint needs
// middleware.Auth in front of it, the permit admin endpoints are assumed to
// sit behind a separate operator-only boundary (e.g. network policy or a
// distinct admin auth layer) since they are never called by marketplace
// users.
func (rt *Router) Routes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/router/{agentId}", authMiddleware(http.HandlerFunc(rt.HandleCall)))

	mux.HandleFunc("POST /permits", rt.HandleCreatePermit)
	mux.HandleFunc("GET /permits", rt.HandleListPermits)
	mux.HandleFunc("PATCH /permits/{id}", rt.HandleUpdatePermit)
	mux.HandleFunc("POST /permits/revoke", rt.HandleRevokePermit)
}
