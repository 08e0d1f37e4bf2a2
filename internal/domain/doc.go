// Package domain models live aircraft state vectors from the OpenSky Network.
//
// # Data Source
//
// State vectors come from the OpenSky `/states/all` endpoint, documented at
// https://openskynetwork.github.io/opensky-api/rest.html. The response is a
// JSON envelope with a `time` field and a `states` field holding an ordered
// sequence of rows. Each row is a fixed-position array, not an object, so the
// fields arrive untyped and must be extracted by index:
//
//	0  icao24          string, unique transponder address (lower-case hex)
//	1  callsign        string, 8 chars, space-padded, may be null
//	2  origin_country  string, inferred from the icao24 allocation
//	5  longitude       float degrees, may be null
//	6  latitude        float degrees, may be null
//	7  baro_altitude   float meters, may be null
//	9  velocity        float m/s over ground, may be null
//	10 true_track      float degrees clockwise from north, may be null
//
// # Normalization Rules
//
// Any value may be null or of the wrong JSON type; the feed mixes numbers,
// strings, and nulls freely within a row. Normalization converts each row at
// this single boundary into a strongly typed [Flight]:
//
//	identifier: required; rows with an empty icao24 are dropped.
//	callsign:   trimmed; blank after trimming becomes the "Unknown" sentinel.
//	country:    missing becomes the "Unknown" sentinel.
//	lat/lon:    required; rows where latitude is outside [-90, 90], longitude
//	            is outside [-180, 180], or either is missing, null, NaN, or
//	            infinite are dropped. A dropped row simply does not exist in
//	            the output; invalid telemetry is routine, not an error.
//	altitude, velocity, heading: missing or null becomes 0.
//
// Dropped rows never fail normalization as a whole: a feed of 10,000 rows
// with 3 malformed ones yields 9,997 flights.
package domain
