package provider

import (
	"context"

	"github.com/kursadbilgin/mailrunner/internal/domain"
)

// Dialer opens one authenticated transport session per bulk run.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is an open channel to the mail service, reused across recipients.
type Session interface {
	Send(ctx context.Context, recipient domain.Recipient, message domain.Message) error
	Close() error
}

// WeatherProvider looks up the current weather for a city.
type WeatherProvider interface {
	Current(ctx context.Context, city string) (*domain.WeatherReport, error)
}
