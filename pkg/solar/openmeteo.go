package solar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/common"
	"github.com/solarplanner/solarplanner/pkg/log"
	"github.com/solarplanner/solarplanner/pkg/types"
)

// OpenMeteo implements Provider against the open-meteo forecast API. It
// converts the tilted irradiance forecast into hourly production for the
// configured panel array.
type OpenMeteo struct {
	apiURL     string
	latitude   float64
	longitude  float64
	tilt       int
	azimuth    int
	efficiency float64
	// total active panel area in square meters
	areaM2 float64
	client *http.Client

	mu            sync.Mutex
	lastFetchTime time.Time
	cachedPoints  []types.SolarPoint
}

// configuredOpenMeteo sets up flags for the open-meteo source and returns the
// instance.
func configuredOpenMeteo() *OpenMeteo {
	o := &OpenMeteo{
		client: common.HTTPClient(10 * time.Second),
	}
	apiURL := lflag.String("openmeteo-api-url", "https://api.open-meteo.com/v1/forecast", "URL for the open-meteo forecast API")
	lat := 46.798833
	lflag.JSON(&lat, "solar-latitude", lat, "Latitude of the solar installation")
	lon := 23.744472
	lflag.JSON(&lon, "solar-longitude", lon, "Longitude of the solar installation")
	tilt := lflag.Int("solar-tilt", 45, "Panel tilt in degrees from horizontal")
	azimuth := lflag.Int("solar-azimuth", -98, "Panel azimuth in degrees (0=S, negative=E)")
	efficiency := 0.225
	lflag.JSON(&efficiency, "solar-efficiency", efficiency, "Panel efficiency factor")
	panelWidthMM := lflag.Int("solar-panel-width-mm", 1762, "Panel width (mm)")
	panelHeightMM := lflag.Int("solar-panel-height-mm", 1134, "Panel height (mm)")
	numPanels := lflag.Int("solar-num-panels", 12, "Number of panels installed")

	lflag.Do(func() {
		o.apiURL = *apiURL
		o.latitude = lat
		o.longitude = lon
		o.tilt = *tilt
		o.azimuth = *azimuth
		o.efficiency = efficiency
		panelM2 := float64(*panelWidthMM) * float64(*panelHeightMM) / 1_000_000
		o.areaM2 = panelM2 * float64(*numPanels)
	})

	return o
}

// Validate ensures the configuration is valid.
func (o *OpenMeteo) Validate() error {
	if o.apiURL == "" {
		return fmt.Errorf("openmeteo-api-url is required")
	}
	if _, err := url.Parse(o.apiURL); err != nil {
		return fmt.Errorf("failed to parse openmeteo url (%s): %w", o.apiURL, err)
	}
	if o.areaM2 <= 0 {
		return fmt.Errorf("panel area must be positive")
	}
	return nil
}

type openMeteoResponse struct {
	Hourly struct {
		Time                   []string  `json:"time"`
		GlobalTiltedIrradiance []float64 `json:"global_tilted_irradiance"`
	} `json:"hourly"`
}

// Forecast fetches the horizon's irradiance and converts it to hourly kWh.
// Results are cached for an hour; the forecast itself only refreshes that often.
func (o *OpenMeteo) Forecast(ctx context.Context, start time.Time, days int) ([]types.SolarPoint, error) {
	now := time.Now()

	o.mu.Lock()
	if !o.lastFetchTime.IsZero() && !now.Truncate(time.Hour).After(o.lastFetchTime) && len(o.cachedPoints) > 0 {
		points := o.slice(o.cachedPoints, start, days)
		if len(points) > 0 {
			o.mu.Unlock()
			return points, nil
		}
	}
	o.mu.Unlock()

	points, err := o.fetch(ctx, start, days)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.cachedPoints = points
	o.lastFetchTime = now
	o.mu.Unlock()

	return o.slice(points, start, days), nil
}

// slice trims cached points down to the requested horizon.
func (o *OpenMeteo) slice(points []types.SolarPoint, start time.Time, days int) []types.SolarPoint {
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	end := dayStart.AddDate(0, 0, days)

	out := make([]types.SolarPoint, 0, days*24)
	for _, p := range points {
		if p.Time.Before(dayStart) || !p.Time.Before(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (o *OpenMeteo) fetch(ctx context.Context, start time.Time, days int) ([]types.SolarPoint, error) {
	u, err := url.Parse(o.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	startDate := start.Format("2006-01-02")
	endDate := start.AddDate(0, 0, days-1).Format("2006-01-02")

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(o.latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(o.longitude, 'f', -1, 64))
	params.Set("hourly", "global_tilted_irradiance")
	params.Set("timezone", "auto")
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	params.Set("tilt", strconv.Itoa(o.tilt))
	params.Set("azimuth", strconv.Itoa(o.azimuth))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching solar forecast from open-meteo", "url", u.String())

	resp, err := o.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch solar forecast", "error", err)
		return nil, fmt.Errorf("failed to fetch solar forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo api returned status: %d", resp.StatusCode)
	}

	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(data.Hourly.Time) == 0 || len(data.Hourly.Time) != len(data.Hourly.GlobalTiltedIrradiance) {
		return nil, fmt.Errorf("open-meteo returned no valid hourly data")
	}

	points := make([]types.SolarPoint, 0, len(data.Hourly.Time))
	for i, ts := range data.Hourly.Time {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, start.Location())
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse open-meteo time", slog.String("value", ts), slog.Any("error", err))
			continue
		}
		// W/m2 over one hour, scaled by panel area and efficiency, to kWh
		kwh := data.Hourly.GlobalTiltedIrradiance[i] * o.areaM2 * o.efficiency / 1000
		if kwh < 0 {
			kwh = 0
		}
		points = append(points, types.SolarPoint{Time: t, EnergyKWH: kwh})
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched solar forecast",
		slog.Int("count", len(points)),
		slog.String("start", startDate),
		slog.String("end", endDate),
	)

	return points, nil
}
