package profile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/api"
	"github.com/ultraorca/ultraorca-api/internal/api/auth"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	GetProfile(w http.ResponseWriter, r *http.Request)
	UpdateProfile(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	profileService ProfileService
	logger         *slog.Logger
}

func NewHandlerImpl(profileService ProfileService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		profileService: profileService,
		logger:         logger,
	}
}

// GetProfile godoc
// @Summary      Get Business Profile
// @Description  Retrieves the authenticated user's issuer profile.
// @Tags         Profile
// @Produce      json
// @Success      200 {object} types.Profile
// @Failure      401 {object} types.Response "Unauthorized"
// @Failure      404 {object} types.Response "Profile never saved"
// @Security     BearerAuth
// @Router       /profile [get]
func (h *HandlerImpl) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "GetProfile"))

	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	profile, err := h.profileService.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Profile not found")
			return
		}
		l.ErrorContext(ctx, "Failed to get profile", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to retrieve profile")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, profile)
}

// UpdateProfile godoc
// @Summary      Update Business Profile
// @Description  Creates the profile on first save, partial update afterwards.
// @Tags         Profile
// @Accept       json
// @Produce      json
// @Param        profile body types.UpdateProfileParams true "Profile fields"
// @Success      200 {object} types.Response
// @Failure      400 {object} types.Response "Invalid input"
// @Failure      401 {object} types.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /profile [put]
func (h *HandlerImpl) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "UpdateProfile"))

	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var params types.UpdateProfileParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.profileService.UpdateProfile(ctx, userID, params); err != nil {
		l.ErrorContext(ctx, "Failed to update profile", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Profile updated successfully",
	})
}

// userIDFromRequest resolves the authenticated user id or writes the error.
func userIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}
