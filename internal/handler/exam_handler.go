package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// ExamHandler serves the "Take Exam" surface.
type ExamHandler struct {
	flow        *service.ExamFlowService
	authService *service.AuthService
	images      *service.QuestionImageService
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	flow *service.ExamFlowService,
	authService *service.AuthService,
	images *service.QuestionImageService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		flow:        flow,
		authService: authService,
		images:      images,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// sessionResponse is returned when a new candidate session is opened.
type sessionResponse struct {
	Token string            `json:"token"`
	View  *service.ExamView `json:"view"`
}

// CreateSession godoc
// POST /api/v1/exam/session
// Opens a fresh session on the login screen and returns its token.
func (h *ExamHandler) CreateSession(c *gin.Context) {
	sid := h.authService.NewSessionID()

	token, err := h.authService.GenerateCandidateToken(sid)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to sign candidate token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	view, err := h.flow.NewSession(c.Request.Context(), sid)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, sessionResponse{Token: token, View: view})
}

// GetState godoc
// GET /api/v1/exam
// Renders the current screen, submitting an expired attempt first.
func (h *ExamHandler) GetState(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := h.flow.Render(c.Request.Context(), sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Start godoc
// POST /api/v1/exam/start
// Submits the login form and starts the timer.
func (h *ExamHandler) Start(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.StartExamRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, errs)
		return
	}

	view, err := h.flow.Start(c.Request.Context(), sid, req.Name, req.Roll)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Answer godoc
// PUT /api/v1/exam/answers/:question
// Selects (or clears) the option of one question.
func (h *ExamHandler) Answer(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	question, err := strconv.Atoi(c.Param("question"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestion)
		return
	}

	var req model.AnswerRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, errs)
		return
	}

	view, err := h.flow.Answer(c.Request.Context(), sid, question, req.Option)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Submit godoc
// POST /api/v1/exam/submit
// Ends the attempt early and returns the report.
func (h *ExamHandler) Submit(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := h.flow.SubmitEarly(c.Request.Context(), sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Logout godoc
// POST /api/v1/exam/logout
// Clears the session and returns to the login screen.
func (h *ExamHandler) Logout(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := h.flow.Logout(c.Request.Context(), sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// QuestionImage godoc
// GET /api/v1/exam/questions/:question/image
// Serves the JPEG of one question.
func (h *ExamHandler) QuestionImage(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("question"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestion)
		return
	}

	path, err := h.images.Path(n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(path)
}

// fail maps flow errors onto the response envelope.
func (h *ExamHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrIdentityRequired):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrIdentityRequired)
	case errors.Is(err, service.ErrInvalidQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidQuestion)
	case errors.Is(err, service.ErrInvalidOption):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidOption)
	case errors.Is(err, service.ErrImageNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrImageNotFound)
	case errors.Is(err, service.ErrSessionBusy):
		response.Fail(c, http.StatusConflict, response.ErrSessionBusy)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Exam request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// sessionID reads the candidate session from the token claims.
func sessionID(c *gin.Context) (string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil || claims.SessionID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", false
	}
	return claims.SessionID, true
}
