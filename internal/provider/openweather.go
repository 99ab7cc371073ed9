package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/kursadbilgin/mailrunner/internal/domain"
)

const defaultWeatherTimeout = 10 * time.Second

var (
	ErrCityNotFound  = errors.New("city not found")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

type openWeatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64  `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	// Visibility is reported in meters.
	Visibility *float64 `json:"visibility"`
}

// OpenWeatherProvider queries the OpenWeatherMap current weather endpoint.
type OpenWeatherProvider struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

func NewOpenWeatherProvider(baseURL, apiKey string, timeout time.Duration) (*OpenWeatherProvider, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultWeatherTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewOpenWeatherProviderWithClient(baseURL, apiKey, client)
}

func NewOpenWeatherProviderWithClient(baseURL, apiKey string, client *resty.Client) (*OpenWeatherProvider, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("weather API url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid weather API url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("weather API key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWeatherTimeout)
	}
	client.SetRetryCount(0)
	client.SetJSONUnmarshaler(json.Unmarshal)

	return &OpenWeatherProvider{
		client:  client,
		baseURL: trimmedURL,
		apiKey:  strings.TrimSpace(apiKey),
	}, nil
}

func (p *OpenWeatherProvider) Current(ctx context.Context, city string) (*domain.WeatherReport, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("%w: city name cannot be empty", domain.ErrValidation)
	}

	var payload openWeatherResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     city,
			"appid": p.apiKey,
			"units": "metric",
		}).
		SetResult(&payload).
		Get(p.baseURL + "/weather")
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &ProviderError{Message: "weather API returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	switch {
	case statusCode == http.StatusOK:
	case statusCode == http.StatusNotFound:
		return nil, &ProviderError{StatusCode: statusCode, Message: fmt.Sprintf("%q", city), Cause: ErrCityNotFound}
	case statusCode == http.StatusUnauthorized:
		return nil, &ProviderError{StatusCode: statusCode, Cause: ErrInvalidAPIKey}
	default:
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("weather API returned status %d", statusCode),
			Transient:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
		}
	}

	return payload.toReport(), nil
}

func requestError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ProviderError{Message: "request timed out", Transient: true, Cause: err}
	}
	return &ProviderError{
		Message:   "could not connect to weather service",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

func (r openWeatherResponse) toReport() *domain.WeatherReport {
	report := &domain.WeatherReport{
		City:        r.Name,
		Country:     r.Sys.Country,
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		Humidity:    r.Main.Humidity,
		Pressure:    r.Main.Pressure,
		WindSpeed:   r.Wind.Speed,
		WindDegrees: r.Wind.Deg,
		CloudCover:  r.Clouds.All,
	}
	if len(r.Weather) > 0 {
		report.Condition = r.Weather[0].Main
		report.Description = r.Weather[0].Description
	}
	if r.Visibility != nil {
		km := *r.Visibility / 1000
		report.VisibilityKM = &km
	}
	return report
}
