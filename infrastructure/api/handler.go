package api

import (
	"chat-dm/domain"
	"chat-dm/errors"
	"chat-dm/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodySize = 64 * 1024

type messageResponse struct {
	Message string `json:"message"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	log      *slog.Logger
	auth     services.IAuthService
	messages services.IMessageService
}

func NewHandler(log *slog.Logger, auth services.IAuthService, messages services.IMessageService) *Handler {
	return &Handler{log: log, auth: auth, messages: messages}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK", "message": "Server is running"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	account, err := h.auth.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	account, err := h.auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	profile, err := h.auth.Me(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	contacts, err := h.auth.ListUsers(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), user.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	messages, err := h.messages.Conversation(r.Context(), user.ID, chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var cmd domain.SendMessageCommand
	if err := decode(w, r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.messages.Send(r.Context(), user, cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, errors.ErrMessageNotFound)
		return
	}
	view, err := h.messages.MarkAsRead(r.Context(), id, user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, messageResponse{Message: fmt.Sprintf("Not found - %s", r.URL.Path)})
}

// fail logs server side failures before answering.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: malformed JSON body", errors.ErrInvalidRequest)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status, message := errors.MapToHTTPStatus(err)
	writeJSON(w, status, messageResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
