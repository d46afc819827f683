// Package httpapi exposes the wallet layer's REST surface.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/app"
	"github.com/blurttok/wallet_layer/internal/config"
	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/metrics"
	"github.com/blurttok/wallet_layer/internal/middleware"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

const maxBodyBytes = 64 << 10

// handler bundles the HTTP endpoints over the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the routed, instrumented HTTP handler.
func NewHandler(application *app.Application, cfg config.Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/sessions", h.startSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{userID}", h.closeSession).Methods(http.MethodDelete)

	r.HandleFunc("/users/resolve", h.resolveUser).Methods(http.MethodGet)
	r.HandleFunc("/users/search", h.searchUsers).Methods(http.MethodGet)

	r.HandleFunc("/platform/balance", h.platformBalance).Methods(http.MethodGet)

	r.HandleFunc("/wallet/{userID}", h.walletState).Methods(http.MethodGet)
	r.HandleFunc("/wallet/{userID}/status", h.walletStatus).Methods(http.MethodGet)
	r.HandleFunc("/wallet/{userID}/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{userID}/transfers", h.transfer).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{userID}/withdrawals", h.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{userID}/deposits/fiat", h.fiatDeposit).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{userID}/deposits/ledger", h.ledgerDeposit).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{userID}/deposits/{transactionID}/confirm", h.confirmDeposit).Methods(http.MethodPost)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, func(r *http.Request) string {
		if id := mux.Vars(r)["userID"]; id != "" {
			return id
		}
		return r.RemoteAddr
	}, log)
	limiter.StartCleanup(10 * time.Minute)
	cors := middleware.NewCORS(cfg.CORSAllowedOrigins)
	trace := middleware.NewTracing(log)

	return metrics.InstrumentHandler(trace.Handler(cors.Handler(limiter.Handler(r))))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Handle string `json:"handle"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("%s", err.Error()))
		return
	}

	session, err := h.app.StartSession(r.Context(), payload.Handle)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, _ := session.Balance.Snapshot()
	writeOK(w, http.StatusCreated, map[string]any{
		"user":   session.User,
		"wallet": snap,
	})
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if err := h.app.CloseSession(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"user_id": userID})
}

func (h *handler) resolveUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.app.Resolver().Resolve(r.Context(), r.URL.Query().Get("input"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, id)
}

func (h *handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, err := h.app.Resolver().Search(r.Context(), q.Get("q"), q.Get("self"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, ids)
}

func (h *handler) platformBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.app.PlatformBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, balance)
}

func (h *handler) walletStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeOK(w, http.StatusOK, session.Transfer.Status())
}

func (h *handler) walletState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, loaded := session.Balance.Snapshot()
	if !loaded {
		writeError(w, errors.DataUnavailable("wallet state not loaded yet", nil))
		return
	}
	writeOK(w, http.StatusOK, snap)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := session.Balance.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, snap)
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Recipient   string `json:"recipient"`
		Amount      string `json:"amount"`
		Memo        string `json:"memo"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("%s", err.Error()))
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := session.Transfer.TransferInternal(r.Context(), payload.Recipient, amount, payload.Memo, payload.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Destination   string `json:"destination"`
		Amount        string `json:"amount"`
		SigningSecret string `json:"signing_secret"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("%s", err.Error()))
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := session.Transfer.TransferExternal(r.Context(), payload.Destination, amount, payload.SigningSecret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}

func (h *handler) fiatDeposit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Amount string `json:"amount"`
		Email  string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("%s", err.Error()))
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	handle, err := session.Deposit.InitiateFiatDeposit(r.Context(), amount, payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, handle)
}

func (h *handler) ledgerDeposit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("%s", err.Error()))
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	handle, err := session.Deposit.InitiateLedgerDeposit(r.Context(), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, handle)
}

func (h *handler) confirmDeposit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := session.Deposit.ConfirmDeposit(r.Context(), mux.Vars(r)["transactionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}

// session looks up the caller's running session, writing the error response
// when there is none.
func (h *handler) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	userID := mux.Vars(r)["userID"]
	session, ok := h.app.Session(userID)
	if !ok {
		writeError(w, errors.NotFound("no active session for user %s", userID))
		return nil, false
	}
	return session, true
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, errors.Validation("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Validation("amount %q is not a number", raw)
	}
	return amount, nil
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeOK(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	svcErr := errors.AsService(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   svcErr,
	})
}
