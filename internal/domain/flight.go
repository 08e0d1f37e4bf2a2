package domain

import (
	"math"
	"strings"
	"time"
)

// Unknown is the sentinel for string fields the feed left absent or blank.
const Unknown = "Unknown"

// Positional indices within a raw state-vector row.
const (
	fieldID       = 0
	fieldCallsign = 1
	fieldCountry  = 2
	fieldLon      = 5
	fieldLat      = 6
	fieldAltitude = 7
	fieldVelocity = 9
	fieldHeading  = 10
)

// RawStateVector is one untyped row from the feed's `states` array.
type RawStateVector []any

// Flight is a single aircraft's validated position report. Immutable once
// constructed; the store replaces whole sets rather than mutating entries.
type Flight struct {
	ID            string    `json:"id"`
	Callsign      string    `json:"callsign"`
	OriginCountry string    `json:"origin_country"`
	Longitude     float64   `json:"longitude"`
	Latitude      float64   `json:"latitude"`
	Altitude      float64   `json:"altitude"`  // meters
	Velocity      float64   `json:"velocity"`  // m/s over ground
	Heading       float64   `json:"heading"`   // degrees clockwise from north
	ObservedAt    time.Time `json:"observed_at"`
}

// NormalizeStates converts raw feed rows into validated flights, preserving
// input order among survivors. Rows failing the identifier or coordinate
// checks are dropped silently. Pure apart from the ObservedAt stamp, which
// comes from the package clock.
func NormalizeStates(rows []RawStateVector) []Flight {
	now := clock.Now().UTC()
	flights := make([]Flight, 0, len(rows))
	for _, row := range rows {
		if f, ok := normalizeRow(row, now); ok {
			flights = append(flights, f)
		}
	}
	return flights
}

// DroppedStates counts the rows NormalizeStates would discard, for metrics.
func DroppedStates(rows []RawStateVector, kept int) int {
	return len(rows) - kept
}

func normalizeRow(row RawStateVector, now time.Time) (Flight, bool) {
	id := stringAt(row, fieldID)
	if id == "" {
		return Flight{}, false
	}

	lon, lonOK := floatAt(row, fieldLon)
	lat, latOK := floatAt(row, fieldLat)
	if !lonOK || !latOK || !validCoordinates(lat, lon) {
		return Flight{}, false
	}

	altitude, _ := floatAt(row, fieldAltitude)
	velocity, _ := floatAt(row, fieldVelocity)
	heading, _ := floatAt(row, fieldHeading)

	return Flight{
		ID:            id,
		Callsign:      stringOrUnknown(stringAt(row, fieldCallsign)),
		OriginCountry: stringOrUnknown(stringAt(row, fieldCountry)),
		Longitude:     lon,
		Latitude:      lat,
		Altitude:      altitude,
		Velocity:      velocity,
		Heading:       heading,
		ObservedAt:    now,
	}, true
}

// validCoordinates reports whether lat/lon are finite and within WGS-84 range.
func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// stringOrUnknown trims s and substitutes the sentinel when nothing remains.
// OpenSky pads callsigns to eight characters with trailing spaces.
func stringOrUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

// stringAt extracts a string field by position, tolerating short rows,
// nulls, and non-string values.
func stringAt(row RawStateVector, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return strings.TrimSpace(s)
}

// floatAt extracts a numeric field by position. The second return is false
// when the field is absent, null, non-numeric, or not finite.
func floatAt(row RawStateVector, i int) (float64, bool) {
	if i >= len(row) {
		return 0, false
	}
	v, ok := row[i].(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
