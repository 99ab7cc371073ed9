package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a bulk run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusAborted   RunStatus = "ABORTED"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusAborted:
		return true
	}
	return false
}

func ParseRunStatusFromString(s string) (RunStatus, error) {
	st := RunStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid run status %q", ErrValidation, s)
	}
	return st, nil
}

// Run is the persisted header of one bulk send.
type Run struct {
	ID              string     `json:"id" yaml:"id"`
	Status          RunStatus  `json:"status" yaml:"status"`
	TotalRecipients int        `json:"totalRecipients" yaml:"totalRecipients"`
	SuccessCount    int        `json:"successCount" yaml:"successCount"`
	FailureCount    int        `json:"failureCount" yaml:"failureCount"`
	Error           *string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt       time.Time  `json:"startedAt" yaml:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
}

// Delivery is a persisted DeliveryResult belonging to a run.
type Delivery struct {
	ID             string    `json:"id" yaml:"id"`
	RunID          string    `json:"runId" yaml:"runId"`
	Position       int       `json:"position" yaml:"position"`
	RecipientEmail string    `json:"recipientEmail" yaml:"recipientEmail"`
	RecipientName  string    `json:"recipientName" yaml:"recipientName"`
	Success        bool      `json:"success" yaml:"success"`
	ErrorMessage   *string   `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	Attempts       int       `json:"attempts" yaml:"attempts"`
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt"`
}
