package match

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/esquilo/wager-engine/internal/mode"
	"github.com/esquilo/wager-engine/internal/model"
	"github.com/esquilo/wager-engine/internal/pix"
	"github.com/esquilo/wager-engine/internal/stakes"
)

// --- Request types ---

// CreateMatchRequest is the JSON body for POST /matches.
type CreateMatchRequest struct {
	GuildID string          `json:"guild_id"`
	Mode    string          `json:"mode"`  // "1v1".."4v4"
	Stake   decimal.Decimal `json:"stake"` // must be in the configured stake list
}

// UserRequest carries the acting user for join/leave/confirm/cancel.
type UserRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// OpenConfirmationRequest is the JSON body for POST /matches/{id}/confirmation.
type OpenConfirmationRequest struct {
	MediatorID string `json:"mediator_id"`
}

// ResultRequest is the JSON body for POST /matches/{id}/result.
type ResultRequest struct {
	WinnerTeam string `json:"winner_team"` // "team1" or "team2"
}

// PixIdentityRequest is the JSON body for PUT /accounts/{userID}/pix.
type PixIdentityRequest struct {
	GuildID string `json:"guild_id"`
	Bank    string `json:"bank"`
	Holder  string `json:"holder"`
	Key     string `json:"key"`
}

// MediatorRequest is the JSON body for PUT /accounts/{userID}/mediator.
type MediatorRequest struct {
	GuildID  string `json:"guild_id"`
	Username string `json:"username,omitempty"`
	Enrol    bool   `json:"enrol"`
}

// StakesRequest is the JSON body for PUT /stakes.
type StakesRequest struct {
	Values []decimal.Decimal `json:"values"`
}

// --- Handlers ---

// HandleCreateMatch handles POST /api/v1/matches.
func (s *Service) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GuildID == "" {
		writeError(w, "guild_id is required", http.StatusBadRequest)
		return
	}

	m, err := s.Create(r.Context(), req.GuildID, req.Mode, req.Stake)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleGetMatch handles GET /api/v1/matches/{matchID}.
func (s *Service) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, "invalid match id", http.StatusBadRequest)
		return
	}

	m, err := s.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleGetMatchByRoomCode handles GET /api/v1/matches/room/{code}.
func (s *Service) HandleGetMatchByRoomCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	m, err := s.GetByRoomCode(r.Context(), code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleListMatches handles GET /api/v1/matches?guild=...&status=...
func (s *Service) HandleListMatches(w http.ResponseWriter, r *http.Request) {
	guildID := r.URL.Query().Get("guild")
	if guildID == "" {
		writeError(w, "guild query parameter is required", http.StatusBadRequest)
		return
	}

	matches, err := s.List(r.Context(), guildID, r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleJoin handles POST /api/v1/matches/{matchID}/join.
func (s *Service) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id, req, ok := userAction(w, r)
	if !ok {
		return
	}

	res, err := s.Join(r.Context(), id, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLeave handles POST /api/v1/matches/{matchID}/leave.
func (s *Service) HandleLeave(w http.ResponseWriter, r *http.Request) {
	id, req, ok := userAction(w, r)
	if !ok {
		return
	}

	if err := s.Leave(r.Context(), id, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOpenConfirmation handles POST /api/v1/matches/{matchID}/confirmation.
func (s *Service) HandleOpenConfirmation(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, "invalid match id", http.StatusBadRequest)
		return
	}

	var req OpenConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MediatorID == "" {
		writeError(w, "mediator_id is required", http.StatusBadRequest)
		return
	}

	if err := s.OpenConfirmation(r.Context(), id, req.MediatorID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleConfirm handles POST /api/v1/matches/{matchID}/confirm.
func (s *Service) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id, req, ok := userAction(w, r)
	if !ok {
		return
	}

	res, err := s.Confirm(r.Context(), id, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleResult handles POST /api/v1/matches/{matchID}/result.
func (s *Service) HandleResult(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, "invalid match id", http.StatusBadRequest)
		return
	}

	var req ResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.RecordResult(r.Context(), id, req.WinnerTeam); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancel handles POST /api/v1/matches/{matchID}/cancel.
func (s *Service) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, req, ok := userAction(w, r)
	if !ok {
		return
	}

	if err := s.Cancel(r.Context(), id, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePaymentCode handles GET /api/v1/matches/{matchID}/payment-code.
func (s *Service) HandlePaymentCode(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, "invalid match id", http.StatusBadRequest)
		return
	}

	payload, err := s.BuildPaymentCode(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pix_payload": payload})
}

// HandleGetAccount handles GET /api/v1/accounts/{userID}?guild=...
func (s *Service) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	guildID := r.URL.Query().Get("guild")
	if guildID == "" {
		writeError(w, "guild query parameter is required", http.StatusBadRequest)
		return
	}

	a, err := s.Profile(r.Context(), guildID, userID, r.URL.Query().Get("username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":  a,
		"win_rate": a.WinRate(),
	})
}

// HandleSetMediator handles PUT /api/v1/accounts/{userID}/mediator.
func (s *Service) HandleSetMediator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req MediatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GuildID == "" {
		writeError(w, "guild_id is required", http.StatusBadRequest)
		return
	}

	if err := s.SetMediator(r.Context(), req.GuildID, userID, req.Username, req.Enrol); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPixIdentity handles PUT /api/v1/accounts/{userID}/pix.
func (s *Service) HandleSetPixIdentity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req PixIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GuildID == "" {
		writeError(w, "guild_id is required", http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		writeError(w, "key is required", http.StatusBadRequest)
		return
	}

	if err := s.SetPixIdentity(r.Context(), req.GuildID, userID, req.Bank, req.Holder, req.Key); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAuditLog handles GET /api/v1/audit?guild=...&limit=...
func (s *Service) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	guildID := r.URL.Query().Get("guild")
	if guildID == "" {
		writeError(w, "guild query parameter is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.AuditLog(r.Context(), guildID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleListStakes handles GET /api/v1/stakes.
func (s *Service) HandleListStakes(w http.ResponseWriter, r *http.Request) {
	if s.stakes == nil {
		writeError(w, "no stake list configured", http.StatusNotFound)
		return
	}
	values, version := s.stakes.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"values":  values,
		"version": version,
	})
}

// HandleReplaceStakes handles PUT /api/v1/stakes.
func (s *Service) HandleReplaceStakes(w http.ResponseWriter, r *http.Request) {
	if s.stakes == nil {
		writeError(w, "no stake list configured", http.StatusNotFound)
		return
	}

	var req StakesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.stakes.Replace(req.Values); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	values, version := s.stakes.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"values":  values,
		"version": version,
	})
}

// --- Helpers ---

func matchID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "matchID"), 10, 64)
}

// userAction decodes the common {user_id} body for match actions.
func userAction(w http.ResponseWriter, r *http.Request) (int64, UserRequest, bool) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, "invalid match id", http.StatusBadRequest)
		return 0, UserRequest{}, false
	}

	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return 0, UserRequest{}, false
	}
	return id, req, true
}

// writeDomainError maps service sentinels onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMatchNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidStake),
		errors.Is(err, ErrInvalidWinner),
		errors.Is(err, mode.ErrInvalidMode),
		errors.Is(err, mode.ErrUnevenTeams),
		errors.Is(err, stakes.ErrEmptyList),
		errors.Is(err, stakes.ErrNonPositive):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotMediator):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyQueued),
		errors.Is(err, ErrNotQueued),
		errors.Is(err, ErrWrongState),
		errors.Is(err, ErrTerminalState),
		errors.Is(err, ErrNoOpenConfirmation),
		errors.Is(err, ErrAlreadySettled):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pix.ErrMissingKey):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
