// Package domain models Environment Agency (EA) flood warning data and the
// postal geography it is resolved against.
//
// # Data Source
//
// Flood warnings originate from the EA real-time flood-monitoring API,
// documented at https://environment.data.gov.uk/flood-monitoring/doc/reference.
// Each update document carries a list of items; the fields consumed here are
// the warning id, the stable floodAreaID, the severity message, the severity
// level, and the flood area's polygon URL. The polygon URL resolves to a
// GeoJSON FeatureCollection describing the flood area's geometry.
//
// # Severity levels
//
// The EA encodes urgency as an integer enum:
//
//	1  severe flood warning   (danger to life)
//	2  flood warning          (immediate action required)
//	3  flood alert            (flooding is possible)
//	4  warning no longer in force
//
// Level 4 is special throughout the system: a flood moving to level 4 has its
// cached state scheduled for expiry, and a flood moving away from level 4 has
// that expiry cancelled.
//
// # Postal geography
//
// UK postcodes nest three granularities, each stored in its own container in
// the sharded spatial store and matched in this order:
//
//	area      "NE"         one or two leading letters
//	district  "NE1"        area plus district digits
//	postcode  "NE1 4EE"    the full unit postcode
//
// A district name's leading letters are always its parent area code, which is
// how district matches are routed to the right postcode container.
package domain
