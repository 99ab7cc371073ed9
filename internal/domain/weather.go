package domain

// WeatherReport is the current weather for one city in metric units.
type WeatherReport struct {
	City        string   `json:"city" yaml:"city"`
	Country     string   `json:"country" yaml:"country"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	FeelsLike   float64  `json:"feelsLike" yaml:"feelsLike"`
	Humidity    int      `json:"humidity" yaml:"humidity"`
	Pressure    int      `json:"pressure" yaml:"pressure"`
	Condition   string   `json:"condition" yaml:"condition"`
	Description string   `json:"description" yaml:"description"`
	WindSpeed   float64  `json:"windSpeed" yaml:"windSpeed"`
	WindDegrees *float64 `json:"windDegrees,omitempty" yaml:"windDegrees,omitempty"`
	CloudCover  int      `json:"cloudCover" yaml:"cloudCover"`
	// VisibilityKM is nil when the API did not report visibility.
	VisibilityKM *float64 `json:"visibilityKm,omitempty" yaml:"visibilityKm,omitempty"`
}
