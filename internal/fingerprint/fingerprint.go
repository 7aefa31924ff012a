// Package fingerprint scores how far a sign-in's device and location drift
// from the account's stored baseline.
package fingerprint

import (
	"math"
	"time"
)

// Snapshot is what the client reports about its device at sign-in, plus the
// IP the server saw. Zero values mean "not reported".
type Snapshot struct {
	UserAgent           string    `json:"userAgent,omitempty"`
	Platform            string    `json:"platform,omitempty"`
	Language            string    `json:"language,omitempty"`
	Timezone            string    `json:"timezone,omitempty"`
	ScreenResolution    string    `json:"screenResolution,omitempty"`
	ColorDepth          int       `json:"colorDepth,omitempty"`
	HardwareConcurrency int       `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        float64   `json:"deviceMemory,omitempty"`
	TouchSupport        *bool     `json:"touchSupport,omitempty"`
	IP                  string    `json:"ip,omitempty"`
	Latitude            *float64  `json:"latitude,omitempty"`
	Longitude           *float64  `json:"longitude,omitempty"`
	CapturedAt          time.Time `json:"capturedAt"`
}

type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

type Action string

const (
	ActionAllow      Action = "ALLOW"
	ActionAllowAudit Action = "ALLOW_AND_AUDIT"
	ActionStepUp     Action = "STEP_UP"
	ActionDeny       Action = "DENY"
)

type Assessment struct {
	Score            int      `json:"score"`
	Level            Level    `json:"level"`
	Action           Action   `json:"action"`
	Similarity       float64  `json:"similarity"`
	DistanceKm       *float64 `json:"distanceKm,omitempty"`
	ImpossibleTravel bool     `json:"impossibleTravel"`
	IPChanged        bool     `json:"ipChanged"`
	Reasons          []string `json:"reasons"`
	BaselineCreated  bool     `json:"baselineCreated,omitempty"`
}

const (
	earthRadiusKm      = 6371.0
	maxTravelSpeedKmH  = 900.0
	deviceRiskWeight   = 60.0
	impossibleTravelPt = 20
	ipChangePt         = 10
)

type attribute struct {
	weight  float64
	present func(Snapshot) bool
	equal   func(a, b Snapshot) bool
}

var attributes = []attribute{
	{0.25, func(s Snapshot) bool { return s.UserAgent != "" }, func(a, b Snapshot) bool { return a.UserAgent == b.UserAgent }},
	{0.15, func(s Snapshot) bool { return s.Platform != "" }, func(a, b Snapshot) bool { return a.Platform == b.Platform }},
	{0.15, func(s Snapshot) bool { return s.ScreenResolution != "" }, func(a, b Snapshot) bool { return a.ScreenResolution == b.ScreenResolution }},
	{0.15, func(s Snapshot) bool { return s.Timezone != "" }, func(a, b Snapshot) bool { return a.Timezone == b.Timezone }},
	{0.10, func(s Snapshot) bool { return s.Language != "" }, func(a, b Snapshot) bool { return a.Language == b.Language }},
	{0.05, func(s Snapshot) bool { return s.ColorDepth != 0 }, func(a, b Snapshot) bool { return a.ColorDepth == b.ColorDepth }},
	{0.05, func(s Snapshot) bool { return s.HardwareConcurrency != 0 }, func(a, b Snapshot) bool { return a.HardwareConcurrency == b.HardwareConcurrency }},
	{0.05, func(s Snapshot) bool { return s.DeviceMemory != 0 }, func(a, b Snapshot) bool { return a.DeviceMemory == b.DeviceMemory }},
	{0.05, func(s Snapshot) bool { return s.TouchSupport != nil }, func(a, b Snapshot) bool { return *a.TouchSupport == *b.TouchSupport }},
}

// Similarity is the weighted share of matching attributes among those both
// snapshots report, in [0,1]. It is 1 when nothing is comparable.
func Similarity(a, b Snapshot) float64 {
	var total, matched float64
	for _, attr := range attributes {
		if !attr.present(a) || !attr.present(b) {
			continue
		}
		total += attr.weight
		if attr.equal(a, b) {
			matched += attr.weight
		}
	}
	if total == 0 {
		return 1
	}
	return matched / total
}

// HaversineKm is the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func locationRisk(km float64) int {
	switch {
	case km > 1000:
		return 40
	case km > 500:
		return 30
	case km > 100:
		return 15
	default:
		return 0
	}
}

func hasLocation(s Snapshot) bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Assess scores current against baseline.
func Assess(baseline, current Snapshot) Assessment {
	sim := Similarity(baseline, current)
	out := Assessment{Similarity: sim, Reasons: []string{}}

	score := int(math.Round((1 - sim) * deviceRiskWeight))
	if score > 0 {
		out.Reasons = append(out.Reasons, "device attributes changed")
	}

	if hasLocation(baseline) && hasLocation(current) {
		km := HaversineKm(*baseline.Latitude, *baseline.Longitude, *current.Latitude, *current.Longitude)
		out.DistanceKm = &km
		if risk := locationRisk(km); risk > 0 {
			score += risk
			out.Reasons = append(out.Reasons, "location changed")
		}
		if impossibleTravel(km, baseline.CapturedAt, current.CapturedAt) {
			out.ImpossibleTravel = true
			score += impossibleTravelPt
			out.Reasons = append(out.Reasons, "impossible travel")
		}
	}

	if baseline.IP != "" && current.IP != "" && baseline.IP != current.IP {
		out.IPChanged = true
		score += ipChangePt
		out.Reasons = append(out.Reasons, "ip address changed")
	}

	if score > 100 {
		score = 100
	}
	out.Score = score
	out.Level = levelFor(score)
	out.Action = actionFor(out.Level)
	return out
}

// impossibleTravel reports an implied speed above what a flight manages. With no
// usable elapsed time, any jump beyond the 100 km noise floor counts.
func impossibleTravel(km float64, from, to time.Time) bool {
	if from.IsZero() || to.IsZero() {
		return false
	}
	hours := to.Sub(from).Hours()
	if hours <= 0 {
		return km > 100
	}
	return km/hours > maxTravelSpeedKmH
}

func levelFor(score int) Level {
	switch {
	case score < 30:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

func actionFor(level Level) Action {
	switch level {
	case LevelLow:
		return ActionAllow
	case LevelMedium:
		return ActionAllowAudit
	case LevelHigh:
		return ActionStepUp
	default:
		return ActionDeny
	}
}
