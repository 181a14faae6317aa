package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"carnival/internal/game"
	"carnival/internal/identity"
	"carnival/internal/ledger"
	"carnival/internal/lobby"
	"carnival/internal/tournament"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	defaultLeaders          = 10
)

// session resolves the caller's lobby session, writing the error response
// itself when it fails.
func (h *routerHandlers) session(w http.ResponseWriter, r *http.Request) (*lobby.Session, bool) {
	u, ok := identity.CurrentUser(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	s, err := h.lobby.Session(r.Context(), u)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return s, true
}

func (h *routerHandlers) handleGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.lobby.Games())
}

func (h *routerHandlers) handlePracticeLeaders(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", defaultLeaders, 100)
	top, err := h.lobby.PracticeLeaders(game.ID(chi.URLParam(r, "game")), n)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, top)
}

func (h *routerHandlers) handleMe(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	p, err := s.Profile(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, p)
}

func (h *routerHandlers) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	txs, err := s.Transactions(r.Context(), queryInt(r, "limit", defaultTransactionLimit, maxTransactionLimit))
	if err != nil {
		writeErr(w, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	writeJSON(w, txs)
}

func (h *routerHandlers) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	tx, err := s.Deposit(r.Context(), req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, tx)
}

func (h *routerHandlers) handleEnterTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seed *int64 `json:"seed"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.EnterTournament(r.Context(), req.Seed)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, st)
}

func (h *routerHandlers) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.Tournament())
}

func (h *routerHandlers) handleStartRound(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.StartRound()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, v)
}

func (h *routerHandlers) handleNextRound(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.NextRound(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, st)
}

func (h *routerHandlers) handleLeaveTournament(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.LeaveTournament())
}

func (h *routerHandlers) handleDismissTutorial(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.DismissTutorial(game.ID(chi.URLParam(r, "game")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]*lobby.MatchView{"match": v})
}

func (h *routerHandlers) handleStartPractice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Game game.ID `json:"game"`
		Seed *int64  `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Game == "" {
		writeError(w, "game is required", http.StatusBadRequest)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.StartPractice(req.Game, req.Seed)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, v)
}

func (h *routerHandlers) handlePracticeResults(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.PracticeResults())
}

func (h *routerHandlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.Match(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, v)
}

func (h *routerHandlers) handleMatchInput(w http.ResponseWriter, r *http.Request) {
	var a game.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil || a.Kind == "" {
		writeError(w, "kind is required", http.StatusBadRequest)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	accepted, err := s.Input(chi.URLParam(r, "id"), a)
	RecordInput(accepted, err)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]bool{"accepted": accepted})
}

func (h *routerHandlers) handleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWebSocket(w, r, h.lobby)
}

// Helper functions (package-level for reuse)

// decodeOptional decodes a JSON body if there is one.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def, limit int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, limit)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, tournament.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrInvalidDeposit), errors.Is(err, ledger.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrUnknownGame), errors.Is(err, lobby.ErrMatchNotFound), errors.Is(err, ledger.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, tournament.ErrInProgress), errors.Is(err, tournament.ErrWrongStatus),
		errors.Is(err, lobby.ErrMatchInProgress), errors.Is(err, lobby.ErrTutorialPending),
		errors.Is(err, game.ErrMatchOver), errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("❌ Request failed: %v", err)
		writeError(w, "internal error", code)
		return
	}
	writeError(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
