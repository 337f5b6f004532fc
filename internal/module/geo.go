package module

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
)

// Bounding box operators.
const (
	OperatorOr  = "or"
	OperatorAnd = "and"
)

// Geo filters results by the places they mention. The filter cannot be
// expressed in the lookup, so it runs as a post-fetch predicate.
type Geo struct {
	logger *slog.Logger
}

var _ Module = (*Geo)(nil)

// NewGeo creates the geo module.
func NewGeo(opts Options) *Geo {
	opts = opts.withDefaults()
	return &Geo{logger: opts.Logger}
}

// BoundingBox is a geographic filter. West greater than East describes a box
// that crosses the antimeridian.
type BoundingBox struct {
	East, West, North, South float64
	Operator                 string
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	var inLon bool
	if b.West > b.East {
		inLon = lon >= b.West || lon <= b.East
	} else {
		inLon = lon >= b.West && lon <= b.East
	}
	return inLon && lat >= b.South && lat <= b.North
}

// Location is a named place and its coordinates.
type Location struct {
	Name    string
	Entries []LocationEntry
}

// LocationEntry is one coordinate of a place.
type LocationEntry struct {
	Latitude          float64 `json:"latitude" xml:"latitude"`
	Longitude         float64 `json:"longitude" xml:"longitude"`
	Alpha2CountryCode string  `json:"alpha2CountryCode" xml:"alpha2CountryCode"`
}

type geoParams struct {
	East     string `schema:"east"`
	West     string `schema:"west"`
	North    string `schema:"north"`
	South    string `schema:"south"`
	Operator string `schema:"operator"`
}

// Name implements Module.
func (g *Geo) Name() string { return "geo" }

// Columns implements Module.
func (g *Geo) Columns() []string { return []string{"locations"} }

// Validate rejects an operator other than "or" and "and". Out of range or
// missing bounds are not errors; they leave the filter off.
func (g *Geo) Validate(raw url.Values, _ Catalog) error {
	if !raw.Has("operator") {
		return nil
	}
	switch strings.ToLower(raw.Get("operator")) {
	case OperatorOr, OperatorAnd:
		return nil
	}
	return mosaicerrors.ValidationError(
		fmt.Sprintf("The operator parameter %s is invalid and must be either or or and", raw.Get("operator"))).
		WithDetail("parameter", "operator")
}

// Parse stores a BoundingBox when all four bounds are present and in range.
func (g *Geo) Parse(raw url.Values, req *Request) error {
	var p geoParams
	if err := decodeParams(&p, raw); err != nil {
		return mosaicerrors.ValidationError(fmt.Sprintf("Invalid query parameters: %v", err))
	}

	east, okE := coordinate(p.East, 180)
	west, okW := coordinate(p.West, 180)
	north, okN := coordinate(p.North, 90)
	south, okS := coordinate(p.South, 90)
	if !okE || !okW || !okN || !okS {
		return nil
	}

	op := strings.ToLower(p.Operator)
	if op == "" {
		op = OperatorOr
	}
	req.SetParam(g.Name(), BoundingBox{East: east, West: west, North: north, South: south, Operator: op})
	return nil
}

// Filter implements Module. The geo condition is applied in Accept.
func (g *Geo) Filter(*Request, ColumnSet) Filter { return Filter{} }

// Accept applies the bounding box to the first entry of every location.
// With "or" one entry inside the box is enough; with "and" every entry must
// be inside. Rows without locations are accepted.
func (g *Geo) Accept(row Row, req *Request) bool {
	box, ok := req.Param(g.Name()).(BoundingBox)
	if !ok {
		return true
	}

	locations := g.locations(row)
	for _, loc := range locations {
		for _, e := range loc.Entries {
			inside := box.Contains(e.Latitude, e.Longitude)
			if inside && box.Operator == OperatorOr {
				return true
			}
			if !inside && box.Operator == OperatorAnd {
				return false
			}
		}
	}
	return len(locations) == 0 || box.Operator == OperatorAnd
}

type locationJSON struct {
	LocationName    string          `json:"locationName"`
	LocationEntries []LocationEntry `json:"locationEntries"`
}

type geoJSON struct {
	Locations []locationJSON `json:"locations"`
}

// JSON implements Module.
func (g *Geo) JSON(res *Result, _ *Request) any {
	out := geoJSON{Locations: []locationJSON{}}
	for _, loc := range g.locations(res.Row) {
		out.Locations = append(out.Locations, locationJSON{LocationName: loc.Name, LocationEntries: loc.Entries})
	}
	return out
}

type locationXML struct {
	LocationName    string          `xml:"locationName"`
	LocationEntries []LocationEntry `xml:"locationEntries>locationEntry"`
}

type geoXML struct {
	XMLName   xml.Name      `xml:"locations"`
	Locations []locationXML `xml:"location"`
}

// WriteXML implements Module.
func (g *Geo) WriteXML(enc *xml.Encoder, res *Result, _ *Request) error {
	var out geoXML
	for _, loc := range g.locations(res.Row) {
		out.Locations = append(out.Locations, locationXML{LocationName: loc.Name, LocationEntries: loc.Entries})
	}
	return enc.Encode(out)
}

func (g *Geo) locations(row Row) []Location {
	raw, ok := row["locations"]
	if !ok {
		return nil
	}
	locs, err := ParseLocations(raw)
	if err != nil {
		g.logger.Debug("locations_unparsable", slog.String("error", err.Error()))
		return nil
	}
	return locs
}

// ParseLocations decodes a locations column: a JSON list of objects mapping
// a place name to a list of [latitude, longitude, country code] triples.
// Only the first triple of each place is kept. Places keep the order in
// which they appear in the column.
func ParseLocations(raw string) ([]Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var objects []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &objects); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}

	var out []Location
	for _, obj := range objects {
		locs, err := parseLocationObject(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, locs...)
	}
	return out, nil
}

// parseLocationObject reads one {name: triples} object key by key.
func parseLocationObject(data json.RawMessage) ([]Location, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("failed to decode locations: expected an object, got %v", tok)
	}

	var out []Location
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode locations: %w", err)
		}
		name, _ := tok.(string)

		var triples [][]any
		if err := dec.Decode(&triples); err != nil {
			return nil, fmt.Errorf("failed to decode locations of %s: %w", name, err)
		}
		if len(triples) == 0 || len(triples[0]) < 2 {
			continue
		}
		lat, err := toFloat(triples[0][0])
		if err != nil {
			return nil, err
		}
		lon, err := toFloat(triples[0][1])
		if err != nil {
			return nil, err
		}
		var cc string
		if len(triples[0]) > 2 && triples[0][2] != nil {
			cc = fmt.Sprint(triples[0][2])
		}
		out = append(out, Location{
			Name:    name,
			Entries: []LocationEntry{{Latitude: lat, Longitude: lon, Alpha2CountryCode: cc}},
		})
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("invalid coordinate %v", v)
	}
}

// coordinate parses s and checks it lies within [-limit, limit].
func coordinate(s string, limit float64) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || f < -limit || f > limit {
		return 0, false
	}
	return f, true
}
