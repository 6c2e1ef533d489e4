package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/live-quiz/pkg/http/api"
	httperrors "github.com/gokatarajesh/live-quiz/pkg/http/errors"
)

const maxBodyBytes = 1 << 20

// HTTPHandlers exposes the session authority over REST.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for session endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "session_http").Logger(),
	}
}

// Register mounts the participant and admin routes on mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/client/connect", h.Connect)
	mux.HandleFunc("POST /api/client/submit", h.Submit)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/quiz", h.Quiz)

	mux.HandleFunc("POST /api/quiz/start", h.Start)
	mux.HandleFunc("POST /api/quiz/advance", h.Advance)
	mux.HandleFunc("POST /api/quiz/next", h.Next)
	mux.HandleFunc("POST /api/quiz/end", h.End)
	mux.HandleFunc("POST /api/quiz/reset", h.Reset)
	mux.HandleFunc("GET /api/results", h.Results)
	mux.HandleFunc("GET /api/clients", h.Clients)
}

// Connect handles POST /api/client/connect
func (h *HTTPHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	res, err := h.service.Connect(r.Context(), req.ClientID)
	if err != nil {
		h.respondServiceError(w, err, "connect failed")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, api.ConnectResponse{
		ClientID:        res.Client.ID,
		ClientName:      res.Client.Name,
		QuizData:        res.Bank,
		TotalClients:    res.TotalClients,
		QuizInProgress:  res.Active,
		CurrentQuestion: res.CurrentIndex,
	})
}

// Submit handles POST /api/client/submit
func (h *HTTPHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.ClientID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "clientId is required", "clientId")
		return
	}

	sub, duplicate, err := h.service.Submit(r.Context(), req.ClientID, req.Answers, req.TimeTaken)
	if err != nil {
		h.respondServiceError(w, err, "submit failed")
		return
	}

	msg := "Quiz submitted successfully"
	if duplicate {
		msg = "Quiz already submitted"
	}
	httperrors.RespondJSON(w, http.StatusOK, api.SubmitResponse{
		Message:    msg,
		Score:      sub.Score,
		MaxScore:   sub.MaxScore,
		Percentage: sub.Percentage,
		Duplicate:  duplicate,
	})
}

// Status handles GET /api/status
func (h *HTTPHandlers) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Status(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "status failed")
		return
	}

	status := "waiting"
	switch {
	case view.Ended:
		status = "ended"
	case view.Active:
		status = "active"
	}
	httperrors.RespondJSON(w, http.StatusOK, api.StatusResponse{
		Status:           status,
		QuizInProgress:   view.Active,
		QuizEnded:        view.Ended,
		CurrentQuestion:  view.CurrentIndex,
		TotalClients:     view.TotalClients,
		CompletedClients: view.CompletedClients,
	})
}

// Quiz handles GET /api/quiz
func (h *HTTPHandlers) Quiz(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Bank(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "bank unavailable")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, b)
}

// Start handles POST /api/quiz/start
func (h *HTTPHandlers) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Start(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "start failed")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, api.QuizActionResponse{
		Message:         "Quiz started",
		QuizInProgress:  true,
		CurrentQuestion: snap.CurrentIndex,
		Changed:         true,
	})
}

// Advance handles POST /api/quiz/advance
func (h *HTTPHandlers) Advance(w http.ResponseWriter, r *http.Request) {
	var req api.AdvanceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	snap, changed, err := h.service.Advance(r.Context(), req.Index)
	h.respondAdvance(w, snap, changed, err)
}

// Next handles POST /api/quiz/next
func (h *HTTPHandlers) Next(w http.ResponseWriter, r *http.Request) {
	snap, changed, err := h.service.Next(r.Context())
	h.respondAdvance(w, snap, changed, err)
}

func (h *HTTPHandlers) respondAdvance(w http.ResponseWriter, snap Snapshot, changed bool, err error) {
	if err != nil {
		h.respondServiceError(w, err, "advance failed")
		return
	}
	msg := "Question advanced"
	if !changed {
		msg = "Question unchanged"
	}
	httperrors.RespondJSON(w, http.StatusOK, api.QuizActionResponse{
		Message:         msg,
		QuizInProgress:  snap.Active,
		CurrentQuestion: snap.CurrentIndex,
		Changed:         changed,
	})
}

// End handles POST /api/quiz/end
func (h *HTTPHandlers) End(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.End(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "end failed")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, api.QuizActionResponse{
		Message:         "Quiz ended",
		QuizInProgress:  snap.Active,
		CurrentQuestion: snap.CurrentIndex,
		Changed:         true,
	})
}

// Reset handles POST /api/quiz/reset
func (h *HTTPHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		h.respondServiceError(w, err, "reset failed")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, api.QuizActionResponse{
		Message: "Quiz reset",
		Changed: true,
	})
}

// Results handles GET /api/results
func (h *HTTPHandlers) Results(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.Results(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "results failed")
		return
	}
	out := make([]api.ResultEntry, len(subs))
	for i, s := range subs {
		out[i] = api.ResultEntry{
			Rank:        i + 1,
			ClientID:    s.ClientID,
			ClientName:  s.ClientName,
			Score:       s.Score,
			MaxScore:    s.MaxScore,
			Percentage:  s.Percentage,
			TimeTaken:   s.TimeTaken,
			Answers:     s.Answers,
			SubmittedAt: s.SubmittedAt,
		}
	}
	httperrors.RespondJSON(w, http.StatusOK, api.ResultsResponse{Results: out, TotalSubmissions: len(out)})
}

// Clients handles GET /api/clients
func (h *HTTPHandlers) Clients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.Clients(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "clients failed")
		return
	}
	out := make([]api.ClientEntry, len(clients))
	for i, c := range clients {
		out[i] = api.ClientEntry{
			ID:       c.ID,
			Name:     c.Name,
			Status:   string(c.Status),
			JoinedAt: c.JoinedAt,
		}
	}
	httperrors.RespondJSON(w, http.StatusOK, api.ClientsResponse{Clients: out, TotalClients: len(out)})
}

func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidClientID):
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "clientId must be a UUID", "clientId")
	case errors.Is(err, ErrClientNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeClientNotFound, "Client not found")
	case errors.Is(err, ErrAlreadyInProgress):
		httperrors.RespondConflict(w, httperrors.ErrCodeQuizInProgress, "Quiz already in progress")
	case errors.Is(err, ErrNotInProgress):
		httperrors.RespondConflict(w, httperrors.ErrCodeQuizNotInProgress, "Quiz is not in progress")
	case errors.Is(err, ErrSessionEnded):
		httperrors.RespondConflict(w, httperrors.ErrCodeQuizEnded, "Quiz has ended, reset it first")
	case errors.Is(err, ErrBankUnavailable):
		h.logger.Error().Err(err).Msg(msg)
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeBankUnavailable, "Question bank unavailable")
	case errors.Is(err, ErrBusy):
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "Session busy, try again")
	default:
		h.logger.Error().Err(err).Msg(msg)
		httperrors.RespondInternalError(w, "Internal server error")
	}
}
