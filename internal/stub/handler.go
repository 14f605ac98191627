package stub

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/directory"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// PermUpdate lets a principal edit accounts other than its own
const PermUpdate = "user:update"

type Handler struct {
	service *Service
	perms   auth.Permissions
}

func NewHandler(service *Service, perms auth.Permissions) *Handler {
	return &Handler{service: service, perms: perms}
}

// authorizeTarget reports whether the request may change username's account.
// The boolean result is whether the principal holds PermUpdate.
func (h *Handler) authorizeTarget(r *http.Request, username string) (bool, error) {
	pr, ok := auth.FromContext(r.Context())
	if !ok {
		return false, ErrNotPermitted
	}
	manage := auth.HasPermission(pr, PermUpdate, h.perms)
	if !manage && pr.Username != username {
		return false, ErrNotPermitted
	}
	return manage, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, users.HTTPResponse{
		HTTPStatusCode: http.StatusOK,
		HTTPStatus:     "OK",
		Reason:         "OK",
		Message:        message,
	})
}

// writeServiceError maps service errors to statuses; the error text is the message
func writeServiceError(w http.ResponseWriter, op string, err error) {
	log.Printf("Failed to %s: %v", op, err)
	switch {
	case errors.Is(err, ErrBadCredentials), errors.Is(err, ErrAccountLocked), errors.Is(err, ErrAccountDisabled):
		auth.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrEmailNotFound), errors.Is(err, ErrImageNotFound):
		auth.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUsernameExists), errors.Is(err, ErrEmailExists):
		auth.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSelfDelete), errors.Is(err, ErrNotPermitted):
		auth.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrMissingUsername), errors.Is(err, ErrMissingEmail), errors.Is(err, ErrNotAnImage),
		errors.Is(err, ErrMissingImage), errors.Is(err, ErrInvalidRoleValue):
		auth.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		auth.WriteError(w, http.StatusInternalServerError, "An error occurred while processing the request")
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds directory.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, token, err := h.service.Login(creds.Username, creds.Password)
	if err != nil {
		writeServiceError(w, "log in", err)
		return
	}
	w.Header().Set(directory.TokenHeader, token)
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListUsers())
}

func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	sub, err := directory.ParseSubmission(r)
	if err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	u, err := h.service.AddUser(r.Context(), sub)
	if err != nil {
		writeServiceError(w, "add user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	sub, err := directory.ParseSubmission(r)
	if err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	manage, err := h.authorizeTarget(r, sub.CurrentUsername)
	if err != nil {
		writeServiceError(w, "update user", err)
		return
	}
	u, err := h.service.UpdateUser(r.Context(), sub, manage)
	if err != nil {
		writeServiceError(w, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	id := mux.Vars(r)["id"]
	if err := h.service.DeleteUser(r.Context(), id, principal); err != nil {
		writeServiceError(w, "delete user", err)
		return
	}
	writeMessage(w, "User deleted successfully")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	if err := h.service.ResetPassword(r.Context(), email); err != nil {
		writeServiceError(w, "reset password", err)
		return
	}
	writeMessage(w, "An email with a new password was sent to: "+email)
}

func (h *Handler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(directory.MaxImageBytes); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	img, err := directory.ParseImage(r)
	if err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	username := r.FormValue(directory.FieldUsername)
	if _, err := h.authorizeTarget(r, username); err != nil {
		writeServiceError(w, "update profile image", err)
		return
	}
	u, err := h.service.UpdateProfileImage(r.Context(), username, img)
	if err != nil {
		writeServiceError(w, "update profile image", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) ProfileImage(w http.ResponseWriter, r *http.Request) {
	contentType, data, err := h.service.ProfileImage(mux.Vars(r)["username"])
	if err != nil {
		writeServiceError(w, "load profile image", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
