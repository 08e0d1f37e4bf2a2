// Package render turns the current flight set into markers and clusters for
// the map rendering surface. Aggregation is a pure function of flight
// positions and viewport state; it holds no identity across refreshes and is
// recomputed in full.
package render

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rookhaven/flightmap/internal/domain"
	"github.com/rookhaven/flightmap/internal/observability"
)

// MetersPerSecondToKnots is the conversion factor used in popup payloads.
const MetersPerSecondToKnots = 1.94384

const (
	tileSize = 256

	// spiderfyLegPx is the pixel radius at which cluster members fan out
	// when the cluster cannot be split by further zooming.
	spiderfyLegPx = 28
)

// Viewport describes the map state the aggregation is computed for.
type Viewport struct {
	Zoom            float64
	ClusterRadiusPx float64
}

// Popup is the structured payload shown when a marker is selected.
type Popup struct {
	Callsign      string `json:"callsign"`
	OriginCountry string `json:"origin_country"`
	AltitudeM     int    `json:"altitude_m"`
	VelocityKn    int    `json:"velocity_kn"`
	HeadingDeg    int    `json:"heading_deg"`
}

// Marker is one renderable flight: position, icon rotation, popup payload.
type Marker struct {
	ID          string  `json:"id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	RotationDeg float64 `json:"rotation_deg"`
	Popup       Popup   `json:"popup"`
}

// RenderGroup is either a single marker (Count == 1) or a cluster of markers
// too close together on screen to render individually. When Spiderfied is set
// the member markers carry fan-out positions instead of their true ones.
type RenderGroup struct {
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Count      int      `json:"count"`
	Spiderfied bool     `json:"spiderfied,omitempty"`
	Markers    []Marker `json:"markers"`
}

type cacheKey struct {
	generation uint64
	zoom       float64
	radius     float64
}

// Aggregator groups flights into render groups for a viewport. It carries an
// LRU cache keyed on (store generation, viewport) so repeated pans over an
// unchanged snapshot skip the recompute.
type Aggregator struct {
	maxZoom float64
	cache   *lru.Cache[cacheKey, []RenderGroup]
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator. Clusters stop subdividing at maxZoom
// and spiderfy instead. cacheSize bounds the cached (generation, viewport)
// combinations.
func NewAggregator(maxZoom float64, cacheSize int, metrics *observability.Metrics) (*Aggregator, error) {
	cache, err := lru.New[cacheKey, []RenderGroup](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Aggregator{maxZoom: maxZoom, cache: cache, metrics: metrics}, nil
}

// Aggregate computes the render groups for the given flights and viewport.
func (a *Aggregator) Aggregate(flights []domain.Flight, vp Viewport) []RenderGroup {
	markers := make([]Marker, len(flights))
	for i, f := range flights {
		markers[i] = newMarker(f)
	}

	groups := clusterMarkers(markers, vp)

	if vp.Zoom >= a.maxZoom {
		for i := range groups {
			spiderfy(&groups[i], vp.Zoom)
		}
	}

	a.metrics.RenderGroups.Observe(float64(len(groups)))
	return groups
}

// AggregateCached is Aggregate behind the LRU cache. generation must be the
// store generation the flight set was read at; a new generation naturally
// misses and recomputes.
func (a *Aggregator) AggregateCached(generation uint64, flights []domain.Flight, vp Viewport) []RenderGroup {
	key := cacheKey{generation: generation, zoom: vp.Zoom, radius: vp.ClusterRadiusPx}
	if groups, ok := a.cache.Get(key); ok {
		a.metrics.AggregationCache.WithLabelValues("hit").Inc()
		return groups
	}
	a.metrics.AggregationCache.WithLabelValues("miss").Inc()

	groups := a.Aggregate(flights, vp)
	a.cache.Add(key, groups)
	return groups
}

// newMarker maps a flight to its renderable form. Icon rotation is driven
// directly by heading with no smoothing between refreshes.
func newMarker(f domain.Flight) Marker {
	return Marker{
		ID:          f.ID,
		Latitude:    f.Latitude,
		Longitude:   f.Longitude,
		RotationDeg: f.Heading,
		Popup: Popup{
			Callsign:      f.Callsign,
			OriginCountry: f.OriginCountry,
			AltitudeM:     int(math.Round(f.Altitude)),
			VelocityKn:    int(math.Round(f.Velocity * MetersPerSecondToKnots)),
			HeadingDeg:    int(math.Round(f.Heading)),
		},
	}
}

// clusterMarkers greedily assigns each marker to the first group whose anchor
// lies within the cluster radius on screen, in input order. Anchors are fixed
// at each group's first member so membership is deterministic; the group's
// display position is the member centroid, computed at the end.
func clusterMarkers(markers []Marker, vp Viewport) []RenderGroup {
	type group struct {
		anchorX, anchorY float64
		members          []Marker
	}

	radius := vp.ClusterRadiusPx
	var groups []group

next:
	for _, m := range markers {
		x, y := project(m.Latitude, m.Longitude, vp.Zoom)
		for i := range groups {
			if radius > 0 && math.Hypot(x-groups[i].anchorX, y-groups[i].anchorY) <= radius {
				groups[i].members = append(groups[i].members, m)
				continue next
			}
		}
		groups = append(groups, group{anchorX: x, anchorY: y, members: []Marker{m}})
	}

	out := make([]RenderGroup, len(groups))
	for i, g := range groups {
		lat, lon := centroid(g.members)
		out[i] = RenderGroup{
			Latitude:  lat,
			Longitude: lon,
			Count:     len(g.members),
			Markers:   g.members,
		}
	}
	return out
}

// spiderfy fans a multi-member group's markers out radially around the group
// position so every member is individually selectable at maximum zoom.
func spiderfy(g *RenderGroup, zoom float64) {
	if g.Count < 2 {
		return
	}
	g.Spiderfied = true

	cx, cy := project(g.Latitude, g.Longitude, zoom)
	step := 2 * math.Pi / float64(g.Count)
	for i := range g.Markers {
		angle := step * float64(i)
		x := cx + spiderfyLegPx*math.Cos(angle)
		y := cy + spiderfyLegPx*math.Sin(angle)
		g.Markers[i].Latitude, g.Markers[i].Longitude = unproject(x, y, zoom)
	}
}

func centroid(markers []Marker) (lat, lon float64) {
	for _, m := range markers {
		lat += m.Latitude
		lon += m.Longitude
	}
	n := float64(len(markers))
	return lat / n, lon / n
}

// project maps WGS-84 coordinates to Web-Mercator world pixels at the given
// zoom. Latitude is clamped near the poles where the projection diverges.
func project(lat, lon, zoom float64) (x, y float64) {
	scale := tileSize * math.Exp2(zoom)

	siny := math.Sin(lat * math.Pi / 180)
	siny = math.Min(math.Max(siny, -0.9999), 0.9999)

	x = (lon + 180) / 360 * scale
	y = (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)) * scale
	return x, y
}

// unproject is the inverse of project.
func unproject(x, y, zoom float64) (lat, lon float64) {
	scale := tileSize * math.Exp2(zoom)

	lon = x/scale*360 - 180
	n := math.Pi - 2*math.Pi*(y/scale)
	lat = 180 / math.Pi * math.Atan(math.Sinh(n))
	return lat, lon
}
