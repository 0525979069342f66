package launchlibrary

import (
	"strings"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

type pageResponse struct {
	Count   int         `json:"count"`
	Next    string      `json:"next"`
	Results []rawLaunch `json:"results"`
}

type rawLaunch struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status struct {
		Name   string `json:"name"`
		Abbrev string `json:"abbrev"`
	} `json:"status"`
	NET         *time.Time `json:"net"`
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`
	Provider    struct {
		Name string `json:"name"`
	} `json:"launch_service_provider"`
	Rocket struct {
		Configuration struct {
			Name     string `json:"name"`
			FullName string `json:"full_name"`
		} `json:"configuration"`
	} `json:"rocket"`
	Mission *struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"mission"`
	Pad struct {
		Name     string `json:"name"`
		Location struct {
			Name string `json:"name"`
		} `json:"location"`
	} `json:"pad"`
	Image       string    `json:"image"`
	WebcastLive bool      `json:"webcast_live"`
	VidURLs     []linkRef `json:"vidURLs"`
	InfoURLs    []linkRef `json:"infoURLs"`
}

type linkRef struct {
	URL string `json:"url"`
}

func (r rawLaunch) record() models.LaunchRecord {
	rec := models.LaunchRecord{
		SourceID:    r.ID,
		Name:        r.Name,
		Status:      models.ParseLaunchStatus(r.Status.Abbrev),
		Provider:    r.Provider.Name,
		Vehicle:     r.Rocket.Configuration.FullName,
		ImageURL:    r.Image,
		WebcastLive: r.WebcastLive,
		VideoURLs:   urls(r.VidURLs),
		InfoURLs:    urls(r.InfoURLs),
	}
	if rec.Vehicle == "" {
		rec.Vehicle = r.Rocket.Configuration.Name
	}
	if r.NET != nil {
		rec.NET = r.NET.UTC()
	}
	if r.WindowStart != nil {
		rec.Window.Start = r.WindowStart.UTC()
	}
	if r.WindowEnd != nil {
		rec.Window.End = r.WindowEnd.UTC()
	}
	if r.Mission != nil {
		rec.Payload = r.Mission.Name
		rec.Mission = r.Mission.Description
	}
	if rec.Payload == "" {
		// Names read "Vehicle | Payload".
		if _, payload, ok := strings.Cut(r.Name, "|"); ok {
			rec.Payload = strings.TrimSpace(payload)
		}
	}
	rec.Location = r.Pad.Location.Name
	if r.Pad.Name != "" {
		if rec.Location == "" {
			rec.Location = r.Pad.Name
		} else {
			rec.Location = r.Pad.Name + ", " + rec.Location
		}
	}
	return rec
}

func urls(refs []linkRef) []string {
	var out []string
	for _, ref := range refs {
		if ref.URL != "" {
			out = append(out, ref.URL)
		}
	}
	return out
}
