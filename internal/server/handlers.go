package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vanshika/iamgraph/internal/domain"
	"github.com/vanshika/iamgraph/internal/service"
)

// IAMStore is the storage contract behind the REST API. It is satisfied by
// *repository.Repository.
type IAMStore interface {
	FetchAllUsers(ctx context.Context) ([]domain.User, error)
	InsertUser(ctx context.Context, user domain.User) ([]domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
	FilesViewableBy(ctx context.Context, name string, infer bool) (domain.FileSearch, error)
	UpdateFilePath(ctx context.Context, oldPath, newPath string) (domain.FileUpdate, error)
	DeleteFile(ctx context.Context, path string) error
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger *slog.Logger
	store  IAMStore
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, store IAMStore) *APIHandlers {
	return &APIHandlers{
		logger: logger,
		store:  store,
	}
}

func (h *APIHandlers) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createUser(w, r)
	case http.MethodGet:
		h.listUsers(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *APIHandlers) handleUserCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	count, err := h.store.CountUsers(r.Context())
	if err != nil {
		h.fail(w, "failed to count users", err)
		return
	}
	respondJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *APIHandlers) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listFiles(w, r)
	case http.MethodPatch:
		h.renameFile(w, r)
	case http.MethodDelete:
		h.deleteFile(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (h *APIHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var payload service.UserInput
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := payload.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inserted, err := h.store.InsertUser(r.Context(), user)
	if err != nil {
		h.fail(w, "failed to persist user", err, "email", user.Email)
		return
	}

	respondJSON(w, http.StatusCreated, usersResponse{Users: inserted})
}

func (h *APIHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.FetchAllUsers(r.Context())
	if err != nil && !errors.Is(err, domain.ErrNoUsers) {
		h.fail(w, "failed to list users", err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	respondJSON(w, http.StatusOK, usersResponse{Users: users})
}

func (h *APIHandlers) listFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("user"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	infer, err := parseBool(query.Get("infer"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid infer")
		return
	}

	result, err := h.store.FilesViewableBy(r.Context(), name, infer)
	if err != nil {
		h.fail(w, "failed to list files", err, "user", name)
		return
	}
	if result.Files == nil {
		result.Files = []domain.FileMatch{}
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandlers) renameFile(w http.ResponseWriter, r *http.Request) {
	var payload renameRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Old) == "" || strings.TrimSpace(payload.New) == "" {
		writeError(w, http.StatusBadRequest, "old and new are required")
		return
	}

	update, err := h.store.UpdateFilePath(r.Context(), payload.Old, payload.New)
	if err != nil {
		h.fail(w, "failed to update file path", err, "old", payload.Old)
		return
	}
	respondJSON(w, http.StatusOK, update)
}

func (h *APIHandlers) deleteFile(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.store.DeleteFile(r.Context(), path); err != nil {
		h.fail(w, "failed to delete file", err, "path", path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail records the request context of a failed store call and hands err to the shared
// error responder.
func (h *APIHandlers) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.Debug(msg, append(attrs, "error", err)...)
	respondError(w, msg, err)
}

type usersResponse struct {
	Users []domain.User `json:"users"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type renameRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func parseBool(value string, fallback bool) (bool, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
