package repository

import (
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
)

// RunModel is the persistence model for the mail_runs table.
type RunModel struct {
	ID              string           `gorm:"type:uuid;primaryKey"`
	Status          domain.RunStatus `gorm:"type:varchar(20);not null"`
	TotalRecipients int              `gorm:"not null;default:0"`
	SuccessCount    int              `gorm:"not null;default:0"`
	FailureCount    int              `gorm:"not null;default:0"`
	Error           *string          `gorm:"type:text"`
	StartedAt       time.Time        `gorm:"type:timestamptz;not null"`
	FinishedAt      *time.Time       `gorm:"type:timestamptz"`
}

func (RunModel) TableName() string {
	return "mail_runs"
}

// DeliveryModel is the persistence model for mail_deliveries.
type DeliveryModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	RunID          string  `gorm:"type:uuid;not null"`
	Position       int     `gorm:"not null"`
	RecipientEmail string  `gorm:"type:varchar(320);not null"`
	RecipientName  string  `gorm:"type:varchar(255);not null"`
	Success        bool    `gorm:"not null"`
	ErrorMessage   *string `gorm:"type:text"`
	Attempts       int     `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

func (DeliveryModel) TableName() string {
	return "mail_deliveries"
}

func runModelFromDomain(r *domain.Run) *RunModel {
	if r == nil {
		return nil
	}

	return &RunModel{
		ID:              r.ID,
		Status:          r.Status,
		TotalRecipients: r.TotalRecipients,
		SuccessCount:    r.SuccessCount,
		FailureCount:    r.FailureCount,
		Error:           r.Error,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

func runModelToDomain(m *RunModel) *domain.Run {
	if m == nil {
		return nil
	}

	return &domain.Run{
		ID:              m.ID,
		Status:          m.Status,
		TotalRecipients: m.TotalRecipients,
		SuccessCount:    m.SuccessCount,
		FailureCount:    m.FailureCount,
		Error:           m.Error,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
	}
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:             d.ID,
		RunID:          d.RunID,
		Position:       d.Position,
		RecipientEmail: d.RecipientEmail,
		RecipientName:  d.RecipientName,
		Success:        d.Success,
		ErrorMessage:   d.ErrorMessage,
		Attempts:       d.Attempts,
		CreatedAt:      d.CreatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:             m.ID,
		RunID:          m.RunID,
		Position:       m.Position,
		RecipientEmail: m.RecipientEmail,
		RecipientName:  m.RecipientName,
		Success:        m.Success,
		ErrorMessage:   m.ErrorMessage,
		Attempts:       m.Attempts,
		CreatedAt:      m.CreatedAt,
	}
}
