// Package httpapi exposes enrollment, fingerprint login, and profile
// management over HTTP. Handlers translate between the JSON/multipart wire
// formats and the service layer, and map sentinel errors to status codes in
// one place.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dsantanna/biolock/internal/common"
	"github.com/dsantanna/biolock/internal/logging"
	"github.com/dsantanna/biolock/internal/server/auth"
	"github.com/dsantanna/biolock/internal/server/models"
	"github.com/dsantanna/biolock/internal/server/services"
)

// maxUploadBytes bounds the multipart body; fingerprint scans are small.
const maxUploadBytes = 8 << 20

// Enroller registers new users from a profile and a fingerprint image.
type Enroller interface {
	CreateUser(ctx context.Context, params services.CreateUserParams, image []byte) (*models.User, error)
}

// Authenticator covers login and the refresh-session lifecycle.
type Authenticator interface {
	Login(ctx context.Context, ident services.LoginIdentifier, image []byte) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) error
}

// UserDirectory covers profile reads and mutations.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Update(ctx context.Context, id int64, params services.UpdateUserParams) (*models.User, error)
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// AccessVerifier validates access tokens presented as bearer credentials.
type AccessVerifier interface {
	VerifyAccess(token string) (*auth.Claims, error)
}

type Handler struct {
	enrollment Enroller
	auth       Authenticator
	users      UserDirectory
	verifier   AccessVerifier
	logger     logging.Logger
}

func NewHandler(enrollment Enroller, authn Authenticator, users UserDirectory,
	verifier AccessVerifier, logger logging.Logger) *Handler {
	return &Handler{
		enrollment: enrollment,
		auth:       authn,
		users:      users,
		verifier:   verifier,
		logger:     logger.With("module", "httpapi"),
	}
}

// Routes assembles the mux with logging and, where needed, bearer auth.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users", h.handleEnroll)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/logout", h.handleLogout)

	mux.Handle("POST /api/logout-all", h.authenticated(h.handleLogoutAll))
	mux.Handle("GET /api/users/{id}", h.authenticated(h.adminOrSelf(h.handleGetUser)))
	mux.Handle("PUT /api/users/{id}", h.authenticated(h.adminOrSelf(h.handleUpdateUser)))
	mux.Handle("DELETE /api/users/{id}", h.authenticated(h.adminOrSelf(h.handleDeleteUser)))
	mux.Handle("POST /api/users/{id}/deactivate", h.authenticated(h.adminOrSelf(h.handleDeactivateUser)))

	return loggingMiddleware(h.logger, mux)
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Lastname  string `json:"lastname,omitempty"`
	Nickname  string `json:"nickname"`
	Email     string `json:"email"`
	Role      int    `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type loginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	Similarity   float64      `json:"similarity"`
	Matched      int          `json:"matched_features"`
	User         userResponse `json:"user"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readFingerprintForm(w, r)
	if !ok {
		return
	}

	role := models.RoleCommon
	if v := strings.TrimSpace(r.FormValue("role")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "role must be an integer")
			return
		}
		role = parsed
	}

	user, err := h.enrollment.CreateUser(r.Context(), services.CreateUserParams{
		Username: strings.TrimSpace(r.FormValue("username")),
		Lastname: strings.TrimSpace(r.FormValue("lastname")),
		Nickname: strings.TrimSpace(r.FormValue("nickname")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Role:     role,
	}, image)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readFingerprintForm(w, r)
	if !ok {
		return
	}

	ident := services.LoginIdentifier{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Nickname: strings.TrimSpace(r.FormValue("nickname")),
	}

	result, err := h.auth.Login(r.Context(), ident, image)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Similarity:   result.Diagnostics.Similarity,
		Matched:      result.Diagnostics.MatchedFeatures,
		User:         toUserResponse(result.User),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.readRefreshToken(w, r)
	if !ok {
		return
	}

	access, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.readRefreshToken(w, r)
	if !ok {
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := h.auth.LogoutAll(r.Context(), claims.UserID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Username string `json:"username"`
		Lastname string `json:"lastname"`
		Role     int    `json:"role"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	// only admins may change a role; a self-update must keep the caller's own
	claims := claimsFrom(r.Context())
	if claims.Role != models.RoleAdmin && req.Role != claims.Role {
		writeError(w, http.StatusForbidden, "forbidden", "role changes require admin")
		return
	}

	user, err := h.users.Update(r.Context(), id, services.UpdateUserParams{
		Username: strings.TrimSpace(req.Username),
		Lastname: strings.TrimSpace(req.Lastname),
		Role:     req.Role,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.users.Deactivate(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// readFingerprintForm parses the multipart body and returns the uploaded
// fingerprint image. On failure it writes the error response itself.
func (h *Handler) readFingerprintForm(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form data")
		return nil, false
	}

	file, _, err := r.FormFile("fingerprint")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "fingerprint file is required")
		return nil, false
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not read fingerprint file")
		return nil, false
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "fingerprint file is empty")
		return nil, false
	}
	return image, true
}

func (h *Handler) readRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return "", false
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return "", false
	}
	return req.RefreshToken, true
}

// writeDomainError maps sentinel errors to HTTP responses. Anything not in
// the table is logged and surfaced as a generic 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, common.ErrorDuplicate):
		writeError(w, http.StatusConflict, "already_registered", "email or nickname already registered")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, common.ErrorNoMatch):
		writeError(w, http.StatusUnauthorized, "no_match", "fingerprint does not match")
	case errors.Is(err, common.ErrorInactive):
		writeError(w, http.StatusForbidden, "inactive", "account is deactivated")
	case errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorSessionNotFound),
		errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case errors.Is(err, common.ErrorInsufficientQuality):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_quality", "not enough features detected in the image")
	case errors.Is(err, common.ErrorExtractionTimeout):
		writeError(w, http.StatusUnprocessableEntity, "extraction_timeout", "feature extraction timed out")
	case errors.Is(err, common.ErrorExtraction):
		writeError(w, http.StatusUnprocessableEntity, "extraction_failed", "could not extract features from the image")
	case errors.Is(err, common.ErrorAlgorithmMismatch):
		writeError(w, http.StatusConflict, "algorithm_mismatch", "enrolled template uses a different algorithm")
	default:
		h.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func toUserResponse(u *models.User) userResponse {
	resp := userResponse{
		ID:       u.ID,
		Username: u.Username,
		Lastname: u.Lastname,
		Nickname: u.Nickname,
		Email:    u.Email,
		Role:     u.Role,
		Active:   u.Active,
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	if !u.UpdatedAt.IsZero() {
		resp.UpdatedAt = u.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
