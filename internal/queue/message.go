package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
)

// FailureMessage is the broker payload for one exhausted recipient. The
// email/name fields mirror the failures CSV so a consumer can rebuild a
// recipients file from it.
type FailureMessage struct {
	RunID    string    `json:"runId"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

func NewFailureMessage(runID string, failure domain.FailureRecord, failedAt time.Time) FailureMessage {
	return FailureMessage{
		RunID:    runID,
		Email:    failure.Email,
		Name:     failure.Name,
		Error:    failure.Error,
		FailedAt: failedAt.UTC(),
	}
}

func (m FailureMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("runId is required")
	}
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}
