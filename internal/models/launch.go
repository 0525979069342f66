package models

import (
	"strings"
	"time"
)

// LaunchStatus is the upstream status of a tracked launch.
type LaunchStatus string

const (
	LaunchStatusGo             LaunchStatus = "Go"
	LaunchStatusTBD            LaunchStatus = "TBD"
	LaunchStatusSuccess        LaunchStatus = "Success"
	LaunchStatusFailure        LaunchStatus = "Failure"
	LaunchStatusHold           LaunchStatus = "Hold"
	LaunchStatusInFlight       LaunchStatus = "InFlight"
	LaunchStatusPartialFailure LaunchStatus = "PartialFailure"
)

// ParseLaunchStatus maps a feed status abbreviation onto a LaunchStatus.
// Unknown values are treated as TBD.
func ParseLaunchStatus(abbrev string) LaunchStatus {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(abbrev), " ", "")) {
	case "go":
		return LaunchStatusGo
	case "success":
		return LaunchStatusSuccess
	case "failure":
		return LaunchStatusFailure
	case "hold":
		return LaunchStatusHold
	case "inflight":
		return LaunchStatusInFlight
	case "partialfailure":
		return LaunchStatusPartialFailure
	default:
		return LaunchStatusTBD
	}
}

// IsFinished reports whether the status is a terminal outcome.
func (s LaunchStatus) IsFinished() bool {
	switch s {
	case LaunchStatusSuccess, LaunchStatusFailure, LaunchStatusPartialFailure:
		return true
	}
	return false
}

// IsPending reports whether the status precedes an outcome.
func (s LaunchStatus) IsPending() bool {
	switch s {
	case LaunchStatusGo, LaunchStatusTBD, LaunchStatusInFlight, LaunchStatusHold:
		return true
	}
	return false
}

// LaunchWindow is the scheduling window of a launch.
type LaunchWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the window.
func (w LaunchWindow) Duration() time.Duration {
	if w.Start.IsZero() || w.End.IsZero() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// LaunchRecord is one element of the launch snapshot.
// SourceID identifies a launch across polls; Ordinal is reassigned every poll.
type LaunchRecord struct {
	SourceID    string       `json:"source_id"`
	Ordinal     int          `json:"ordinal"`
	Name        string       `json:"name"`
	Status      LaunchStatus `json:"status"`
	NET         time.Time    `json:"net"`
	Window      LaunchWindow `json:"window"`
	Provider    string       `json:"provider"`
	Vehicle     string       `json:"vehicle"`
	Payload     string       `json:"payload"`
	Mission     string       `json:"mission,omitempty"`
	Location    string       `json:"location"`
	ImageURL    string       `json:"image_url,omitempty"`
	VideoURLs   []string     `json:"video_urls,omitempty"`
	InfoURLs    []string     `json:"info_urls,omitempty"`
	WebcastLive bool         `json:"webcast_live"`
}

// MinutesUntil returns whole minutes between now and the launch time, rounded down.
func (r LaunchRecord) MinutesUntil(now time.Time) int {
	return int(r.NET.Sub(now) / time.Minute)
}

// Providers maps filter keys onto launch service provider names as the feed reports them.
var Providers = map[string]string{
	"spacex":      "SpaceX",
	"ula":         "United Launch Alliance",
	"rocketlab":   "Rocket Lab",
	"blueorigin":  "Blue Origin",
	"arianespace": "Arianespace",
	"nasa":        "National Aeronautics and Space Administration",
	"roscosmos":   "Russian Federal Space Agency (ROSCOSMOS)",
	"casc":        "China Aerospace Science and Technology Corporation",
	"isro":        "Indian Space Research Organization",
	"jaxa":        "Japan Aerospace Exploration Agency",
	"northrop":    "Northrop Grumman Space Systems",
	"firefly":     "Firefly Aerospace",
	"galactic":    "Galactic Energy",
	"landspace":   "LandSpace",
	"vg":          "Virgin Galactic",
}

// ProviderName resolves a filter key to its provider name. Unknown keys resolve to themselves.
func ProviderName(key string) string {
	if name, ok := Providers[strings.ToLower(key)]; ok {
		return name
	}
	return key
}

// IsKnownProvider reports whether key is a recognised provider key.
func IsKnownProvider(key string) bool {
	_, ok := Providers[strings.ToLower(key)]
	return ok
}

// ProviderMatches reports whether the filter key refers to provider.
func ProviderMatches(key, provider string) bool {
	return strings.EqualFold(key, provider) || strings.EqualFold(ProviderName(key), provider)
}
