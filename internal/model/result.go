package model

import (
	"fmt"
	"time"
)

// LedgerTimeLayout is the timestamp format of ledger rows.
const LedgerTimeLayout = "2006-01-02 15:04:05"

// LedgerHeader is the fixed column schema of the results ledger.
var LedgerHeader = []string{"Timestamp", "Name", "Roll", "Score"}

// ResultRecord is one completed attempt in the ledger.
type ResultRecord struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Roll      string `json:"roll"`
	Score     string `json:"score"`
}

// NewResultRecord formats a ledger row for a finished attempt.
func NewResultRecord(at time.Time, c Candidate, score, total int) ResultRecord {
	return ResultRecord{
		Timestamp: at.Format(LedgerTimeLayout),
		Name:      c.Name,
		Roll:      c.Roll,
		Score:     FormatScore(score, total),
	}
}

// Row returns the record as ledger columns.
func (r ResultRecord) Row() []string {
	return []string{r.Timestamp, r.Name, r.Roll, r.Score}
}

// FormatScore renders "<correct>/<total>".
func FormatScore(score, total int) string {
	return fmt.Sprintf("%d/%d", score, total)
}

// SubmitReason tells how an attempt ended.
type SubmitReason string

const (
	SubmitReasonEarly   SubmitReason = "EARLY"
	SubmitReasonTimeout SubmitReason = "TIMEOUT"
)

// ReportItem is one row of the question-wise report.
type ReportItem struct {
	Question      int    `json:"question"`
	YourAnswer    Option `json:"your_answer,omitempty"`
	CorrectAnswer Option `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

// Report is the score report shown after submission.
type Report struct {
	Candidate   Candidate    `json:"candidate"`
	Score       int          `json:"score"`
	Total       int          `json:"total"`
	StartedAt   time.Time    `json:"started_at"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Reason      SubmitReason `json:"reason"`
	Items       []ReportItem `json:"items"`
}
