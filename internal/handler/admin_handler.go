package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

const (
	csvExportName  = "final_results.csv"
	xlsxExportName = "final_results.xlsx"
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AdminHandler serves the password-gated results dashboard.
type AdminHandler struct {
	authService  *service.AuthService
	adminService *service.AdminService
	log          zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(authService *service.AuthService, adminService *service.AdminService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		authService:  authService,
		adminService: adminService,
		log:          log.With().Str("component", "admin_handler").Logger(),
	}
}

type loginResponse struct {
	Authenticated bool   `json:"authenticated"`
	Token         string `json:"token,omitempty"`
}

type resultsResponse struct {
	Records []model.ResultRecord `json:"records"`
	Message string               `json:"message,omitempty"`
}

// Login godoc
// POST /api/v1/admin/login
// Exchanges the admin password for a dashboard token. An empty password is
// neither accepted nor reported as wrong.
func (h *AdminHandler) Login(c *gin.Context) {
	var req model.AdminLoginRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, errs)
		return
	}

	err := h.authService.CheckAdminPassword(req.Password)
	switch {
	case errors.Is(err, service.ErrEmptyPassword):
		response.Success(c, http.StatusOK, loginResponse{Authenticated: false})
		return
	case errors.Is(err, service.ErrInvalidPassword):
		h.log.Warn().Str("ip", c.ClientIP()).Msg("Rejected admin password")
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidPassword)
		return
	case err != nil:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	token, err := h.authService.GenerateAdminToken()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to sign admin token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, loginResponse{Authenticated: true, Token: token})
}

// ListResults godoc
// GET /api/v1/admin/results
// Returns every ledger row in submission order.
func (h *AdminHandler) ListResults(c *gin.Context) {
	records, err := h.adminService.ListResults(c.Request.Context())
	if errors.Is(err, repository.ErrLedgerAbsent) {
		response.Success(c, http.StatusOK, resultsResponse{
			Records: []model.ResultRecord{},
			Message: h.adminService.AbsentMessage(),
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read ledger")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, resultsResponse{Records: records})
}

// ExportCSV godoc
// GET /api/v1/admin/results/export
// Downloads the ledger as final_results.csv.
func (h *AdminHandler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.adminService.ExportCSV(c.Request.Context(), &buf); err != nil {
		h.exportFail(c, err)
		return
	}
	h.attach(c, csvExportName, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportXLSX godoc
// GET /api/v1/admin/results/export.xlsx
// Downloads the ledger as a spreadsheet.
func (h *AdminHandler) ExportXLSX(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.adminService.ExportXLSX(c.Request.Context(), &buf); err != nil {
		h.exportFail(c, err)
		return
	}
	h.attach(c, xlsxExportName, xlsxMIME, buf.Bytes())
}

// ClearResults godoc
// DELETE /api/v1/admin/results
// Irreversibly deletes every recorded result.
func (h *AdminHandler) ClearResults(c *gin.Context) {
	if err := h.adminService.Clear(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear ledger")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cleared": true})
}

func (h *AdminHandler) attach(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func (h *AdminHandler) exportFail(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrLedgerAbsent) {
		response.Fail(c, http.StatusNotFound, response.ErrLedgerAbsent)
		return
	}
	h.log.Error().Err(err).Msg("Failed to export ledger")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
