package models

// ScrubEvent records a launch that moved later by more than the scrub threshold.
type ScrubEvent struct {
	Old LaunchRecord `json:"old"`
	New LaunchRecord `json:"new"`
}

// OutcomeEvent records a launch that reached a terminal status.
type OutcomeEvent struct {
	Launch   LaunchRecord `json:"launch"`
	Previous LaunchStatus `json:"previous"`
}

// ReminderEvent asks subscribers reminded at Minutes before launch to be notified.
type ReminderEvent struct {
	Launch  LaunchRecord `json:"launch"`
	Minutes int          `json:"minutes"`
}
