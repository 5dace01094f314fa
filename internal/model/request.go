package model

// StartExamRequest is the login form of the exam screen. Blank fields are
// rejected by the exam flow, which keeps the session on the login screen.
type StartExamRequest struct {
	Name string `json:"name" binding:"max=255"`
	Roll string `json:"roll" binding:"max=64"`
}

// AnswerRequest selects (or clears, when empty) the option for one question.
type AnswerRequest struct {
	Option Option `json:"option" binding:"omitempty,quiz_option"`
}

// AdminLoginRequest carries the shared admin password. An empty password is a
// neutral request, not a validation failure.
type AdminLoginRequest struct {
	Password string `json:"password" binding:"max=256"`
}
