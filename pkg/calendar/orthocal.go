package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarplanner/solarplanner/pkg/common"
)

// Orthocal looks up holidays from the orthocal.info liturgical calendar
// API. Days are holidays when their feast level meets the configured
// minimum. Responses are cached per date since the calendar never changes.
type Orthocal struct {
	apiURL        string
	minFeastLevel int64
	client        *http.Client

	mu    sync.Mutex
	cache map[string]bool
}

type orthocalResponse struct {
	FeastLevel int64    `json:"feast_level"`
	Feasts     []string `json:"feasts"`
}

// configuredOrthocal sets up the orthocal flags.
func configuredOrthocal() *Orthocal {
	o := &Orthocal{
		client: common.HTTPClient(10 * time.Second),
		cache:  map[string]bool{},
	}
	apiURL := lflag.String("orthocal-api-url", "https://orthocal.info/api/gregorian", "Base URL for the orthocal API")
	minLevel := lflag.Int("orthocal-min-feast-level", 4, "Minimum feast level to count a day as a holiday")

	lflag.Do(func() {
		o.apiURL = *apiURL
		o.minFeastLevel = int64(*minLevel)
	})

	return o
}

// NewOrthocal creates a client against an explicit URL, for tests.
func NewOrthocal(apiURL string, minFeastLevel int64, client *http.Client) *Orthocal {
	return &Orthocal{
		apiURL:        apiURL,
		minFeastLevel: minFeastLevel,
		client:        client,
		cache:         map[string]bool{},
	}
}

// IsHoliday implements HolidaySource.
func (o *Orthocal) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	key := date.Format("2006-01-02")

	o.mu.Lock()
	holiday, ok := o.cache[key]
	o.mu.Unlock()
	if ok {
		return holiday, nil
	}

	holiday, err := o.fetch(ctx, date)
	if err != nil {
		return false, err
	}

	o.mu.Lock()
	o.cache[key] = holiday
	o.mu.Unlock()
	return holiday, nil
}

func (o *Orthocal) fetch(ctx context.Context, date time.Time) (bool, error) {
	url := fmt.Sprintf("%s/%d/%d/%d/", o.apiURL, date.Year(), int(date.Month()), date.Day())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("error creating orthocal request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("error sending orthocal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code (%d) from orthocal", resp.StatusCode)
	}

	var body orthocalResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("error decoding orthocal response: %w", err)
	}

	return body.FeastLevel >= o.minFeastLevel, nil
}
