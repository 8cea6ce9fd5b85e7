// Package eta computes delivery-time confidence bands and decides whether an
// arrival promise is solid enough to be shown as trusted.
package eta

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type Weather string

const (
	WeatherNormal Weather = "normal"
	WeatherRain   Weather = "rain"
	WeatherStorm  Weather = "storm"
)

const (
	DefaultBufferMinutes    = 5.0
	DefaultReliabilityScore = 0.9

	minTravelMinutes   = 5.0
	handoffMinutes     = 3.0 // restaurant-to-courier handoff slack
	lastMileMinutes    = 4.0 // parking, stairs, finding the door
	maxBandWidth       = 25
	trustedReliability = 0.9
	staleReliability   = 0.75
	maxTrustedWeather  = 1.15
)

var ErrUnknownWeather = errors.New("unknown weather severity")

// Input holds everything the estimator needs. Use NewInput to get the
// documented defaults; the zero value means zero buffer and stale data.
type Input struct {
	PrepP50Minutes   float64 `json:"prep_p50_minutes"`
	PrepP90Minutes   float64 `json:"prep_p90_minutes"`
	BufferMinutes    float64 `json:"buffer_minutes"`
	TravelMinutes    float64 `json:"travel_minutes"`
	Weather          Weather `json:"weather"`
	ReliabilityScore float64 `json:"reliability_score"` // expected in [0,1]; not clamped
	DataFresh        bool    `json:"data_fresh"`
}

// Band is the computed estimate. EtaLowMinutes <= EtaMinutes <= EtaHighMinutes.
type Band struct {
	EtaMinutes       int     `json:"eta_minutes"`
	EtaLowMinutes    int     `json:"eta_low_minutes"`
	EtaHighMinutes   int     `json:"eta_high_minutes"`
	Trusted          bool    `json:"trusted"`
	WeatherFactor    float64 `json:"weather_factor"`
	BandWidthMinutes int     `json:"band_width_minutes"`
	BandTooWide      bool    `json:"band_too_wide"`
	DataStale        bool    `json:"data_stale"`
}

// Promise is a band pinned to wall-clock time.
type Promise struct {
	Promised time.Time `json:"promised"`
	Low      time.Time `json:"low"`
	High     time.Time `json:"high"`
}

func NewInput(prepP50, prepP90, travel float64) Input {
	return Input{
		PrepP50Minutes:   prepP50,
		PrepP90Minutes:   prepP90,
		BufferMinutes:    DefaultBufferMinutes,
		TravelMinutes:    travel,
		Weather:          WeatherNormal,
		ReliabilityScore: DefaultReliabilityScore,
		DataFresh:        true,
	}
}

func ParseWeather(s string) (Weather, error) {
	switch w := Weather(strings.ToLower(strings.TrimSpace(s))); w {
	case WeatherNormal, WeatherRain, WeatherStorm:
		return w, nil
	case "":
		return WeatherNormal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWeather, s)
}

// Factor is the travel-time multiplier for the weather. Anything unrecognised
// is treated as normal.
func (w Weather) Factor() float64 {
	switch w {
	case WeatherStorm:
		return 1.3
	case WeatherRain:
		return 1.12
	default:
		return 1.0
	}
}

// ComputeBand never fails. Malformed numbers flow through the arithmetic and
// usually, not always, produce an untrusted band.
//
// Low <= mid <= high holds only for non-negative inputs with
// PrepP90Minutes >= PrepP50Minutes. Inverted percentiles can put high below
// low, and the band width then comes out negative.
func ComputeBand(in Input) Band {
	weatherFactor := in.Weather.Factor()
	safeTravel := math.Max(minTravelMinutes, in.TravelMinutes)
	travel := safeTravel * weatherFactor

	low := roundHalfUp(in.PrepP50Minutes + in.BufferMinutes + travel)
	high := roundHalfUp(in.PrepP90Minutes + in.BufferMinutes + handoffMinutes + travel + lastMileMinutes)
	mid := roundHalfUp(float64(low+high) / 2)

	bandWidth := high - low
	bandTooWide := bandWidth > maxBandWidth
	dataStale := in.ReliabilityScore < staleReliability || !in.DataFresh

	return Band{
		EtaMinutes:       mid,
		EtaLowMinutes:    low,
		EtaHighMinutes:   high,
		Trusted:          in.ReliabilityScore >= trustedReliability && weatherFactor <= maxTrustedWeather && !bandTooWide && !dataStale,
		WeatherFactor:    weatherFactor,
		BandWidthMinutes: bandWidth,
		BandTooWide:      bandTooWide,
		DataStale:        dataStale,
	}
}

func TimestampsFromNow(band Band, now time.Time) Promise {
	return Promise{
		Promised: now.Add(time.Duration(band.EtaMinutes) * time.Minute),
		Low:      now.Add(time.Duration(band.EtaLowMinutes) * time.Minute),
		High:     now.Add(time.Duration(band.EtaHighMinutes) * time.Minute),
	}
}

// roundHalfUp rounds .5 toward positive infinity, unlike math.Round which
// rounds away from zero.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
