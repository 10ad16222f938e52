package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultWeatherURL is the wttr.in JSON endpoint for the caller's location.
const DefaultWeatherURL = "https://wttr.in/?format=j1"

// WeatherReport is the current condition at the caller's location.
type WeatherReport struct {
	Description  string
	TemperatureC string
}

// Sentence renders the report the way the assistant speaks it.
func (r WeatherReport) Sentence() string {
	return fmt.Sprintf("The current weather is %s with a temperature of %s°C.", r.Description, r.TemperatureC)
}

// WeatherSource fetches the current weather.
type WeatherSource interface {
	Current(ctx context.Context) (WeatherReport, error)
}

// WTTR queries wttr.in.
type WTTR struct {
	url    string
	client *http.Client
}

var _ WeatherSource = (*WTTR)(nil)

// NewWTTR returns a client for url, or [DefaultWeatherURL] when url is empty.
// A nil client selects one with a 10 second timeout.
func NewWTTR(url string, client *http.Client) *WTTR {
	if url == "" {
		url = DefaultWeatherURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WTTR{url: url, client: client}
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

// Current implements [WeatherSource].
func (w *WTTR) Current(ctx context.Context) (WeatherReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return WeatherReport{}, fmt.Errorf("weather: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return WeatherReport{}, fmt.Errorf("weather: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return WeatherReport{}, fmt.Errorf("weather: unexpected status %s", resp.Status)
	}

	var body wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return WeatherReport{}, fmt.Errorf("weather: decode: %w", err)
	}
	if len(body.CurrentCondition) == 0 || len(body.CurrentCondition[0].WeatherDesc) == 0 {
		return WeatherReport{}, errors.New("weather: response has no current condition")
	}
	cur := body.CurrentCondition[0]
	return WeatherReport{
		Description:  cur.WeatherDesc[0].Value,
		TemperatureC: cur.TempC,
	}, nil
}
