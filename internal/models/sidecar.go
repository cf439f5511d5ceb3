package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SidecarPayload is the subset of a Takeout metadata file the pipeline reads.
// Unknown fields are preserved in the raw bytes kept on [MediaRecord].
type SidecarPayload struct {
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	PhotoTakenTime *SidecarTime `json:"photoTakenTime,omitempty"`
	CreationTime   *SidecarTime `json:"creationTime,omitempty"`
	GeoData        *SidecarGeo  `json:"geoData,omitempty"`
	URL            string       `json:"url,omitempty"`
}

// SidecarTime holds an epoch-seconds string and Google's human readable rendering.
type SidecarTime struct {
	Timestamp string `json:"timestamp"`
	Formatted string `json:"formatted"`
}

// SidecarGeo is the location block of a sidecar.
type SidecarGeo struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	LatitudeSpan  float64 `json:"latitudeSpan"`
	LongitudeSpan float64 `json:"longitudeSpan"`
}

// ParseSidecar decodes a sidecar payload.
func ParseSidecar(data []byte) (*SidecarPayload, error) {
	var p SidecarPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse sidecar: %w", err)
	}
	return &p, nil
}

// TakenAt returns the capture time in UTC.
//
// The boolean is false when the payload has no photoTakenTime. A present but malformed timestamp is an error.
func (p *SidecarPayload) TakenAt() (time.Time, bool, error) {
	if p == nil || p.PhotoTakenTime == nil {
		return time.Time{}, false, nil
	}
	return p.PhotoTakenTime.Time()
}

// Time converts the epoch-seconds string to UTC.
func (t *SidecarTime) Time() (time.Time, bool, error) {
	raw := strings.TrimSpace(t.Timestamp)
	if raw == "" {
		return time.Time{}, false, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid sidecar timestamp %q: %w", t.Timestamp, err)
	}
	return time.Unix(secs, 0).UTC(), true, nil
}
