package domain

import (
	"github.com/paulmach/orb/geojson"
)

// SeverityLevel is the EA flood warning urgency enum.
type SeverityLevel int

const (
	SevereFloodWarning SeverityLevel = 1
	FloodWarningLevel  SeverityLevel = 2
	FloodAlert         SeverityLevel = 3
	NoLongerInForce    SeverityLevel = 4
)

// String returns the conventional EA wording for a severity level.
func (l SeverityLevel) String() string {
	switch l {
	case SevereFloodWarning:
		return "Severe Flood Warning"
	case FloodWarningLevel:
		return "Flood Warning"
	case FloodAlert:
		return "Flood Alert"
	case NoLongerInForce:
		return "Warning no Longer in Force"
	}
	return "Unknown"
}

// FloodArea is the flood area reference carried on a warning. Polygon is the
// URL of the area's GeoJSON document.
type FloodArea struct {
	ID         string `json:"@id"`
	County     string `json:"county,omitempty"`
	Notation   string `json:"notation,omitempty"`
	Polygon    string `json:"polygon"`
	RiverOrSea string `json:"riverOrSea,omitempty"`
}

// FloodWarning is one item of an EA flood update. Immutable once received for
// a processing run; Geometry is populated by the polygon fetch collaborator.
type FloodWarning struct {
	ID            string        `json:"@id"`
	Description   string        `json:"description,omitempty"`
	EAAreaName    string        `json:"eaAreaName,omitempty"`
	FloodArea     FloodArea     `json:"floodArea"`
	FloodAreaID   string        `json:"floodAreaID"`
	IsTidal       bool          `json:"isTidal,omitempty"`
	Message       string        `json:"message,omitempty"`
	Severity      string        `json:"severity"`
	SeverityLevel SeverityLevel `json:"severityLevel"`
	TimeRaised    string        `json:"timeRaised,omitempty"`

	// Geometry holds the resolved flood area document. It never appears on
	// the wire; the upstream feed only carries the polygon URL.
	Geometry *geojson.FeatureCollection `json:"-"`
}

// FloodUpdate is one batch of warnings from the upstream feed.
type FloodUpdate struct {
	Context string         `json:"@context,omitempty"`
	Items   []FloodWarning `json:"items"`
}

// FloodWithPostcodes pairs a flood with the deduplicated set of full
// postcodes its geometry intersects. It is the unit of pipeline output and
// the unit of notification assembly input.
type FloodWithPostcodes struct {
	Flood     FloodWarning
	Postcodes []string
}

// Subscriber is one mailing list entry, identified for notification dispatch.
type Subscriber struct {
	ID    string
	Email string
}

// Notification pairs one flood with every subscriber registered to an
// affected postcode.
type Notification struct {
	Flood       FloodWarning
	Subscribers []Subscriber
}
