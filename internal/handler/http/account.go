package http

import (
	"log/slog"
	"net/http"

	"github.com/Muhadev/celm-backend/internal/service"
	apperrors "github.com/Muhadev/celm-backend/pkg/errors"
	"github.com/Muhadev/celm-backend/pkg/httputil"
	"github.com/Muhadev/celm-backend/pkg/middleware"
)

type AccountHandler struct {
	service *service.AccountService
	logger  *slog.Logger
}

func NewAccountHandler(svc *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: svc, logger: logger}
}

// GetProfile handles GET /api/v1/accounts/me
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	account, err := h.service.GetProfile(r.Context(), principal.AccountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, account)
}
