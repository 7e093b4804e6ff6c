package adapter

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	placeNameRe = regexp.MustCompile(`/place/([^/?#]+)`)
	atCoordsRe  = regexp.MustCompile(`@(-?[\d.]+),(-?[\d.]+)`)
	dataCoordRe = regexp.MustCompile(`!3d(-?[\d.]+)!4d(-?[\d.]+)`)
)

// PlaceRef is what a map URL says about the place it points at. At least one
// of PlaceID, Query or coordinates is set.
type PlaceRef struct {
	PlaceID   string
	Query     string
	Lat, Lng  float64
	HasCoords bool
}

// ParsePlaceRef extracts a place reference from an expanded map URL.
// Explicit place IDs win over names, and the precise !3d/!4d pin wins over
// the viewport centre in @lat,lng.
func ParsePlaceRef(u *url.URL) (PlaceRef, error) {
	var ref PlaceRef

	q := u.Query()
	for _, key := range []string{"place_id", "query_place_id"} {
		if id := strings.TrimSpace(q.Get(key)); id != "" {
			ref.PlaceID = strings.TrimPrefix(id, "place_id:")
			break
		}
	}
	if id := strings.TrimSpace(q.Get("q")); strings.HasPrefix(id, "place_id:") {
		ref.PlaceID = strings.TrimPrefix(id, "place_id:")
	}

	path := u.EscapedPath()
	if m := placeNameRe.FindStringSubmatch(path); m != nil {
		ref.Query = decodePlaceName(m[1])
	} else if query := strings.TrimSpace(q.Get("query")); query != "" {
		ref.Query = query
	}

	full := path + "?" + u.RawQuery
	if m := dataCoordRe.FindStringSubmatch(full); m != nil {
		ref.Lat, ref.Lng, ref.HasCoords = parseCoords(m[1], m[2])
	}
	if !ref.HasCoords {
		if m := atCoordsRe.FindStringSubmatch(full); m != nil {
			ref.Lat, ref.Lng, ref.HasCoords = parseCoords(m[1], m[2])
		}
	}

	if ref.PlaceID == "" && ref.Query == "" && !ref.HasCoords {
		return ref, eris.Errorf("map url has no place reference: %s", u.Redacted())
	}
	return ref, nil
}

func decodePlaceName(seg string) string {
	seg = strings.ReplaceAll(seg, "+", " ")
	if dec, err := url.PathUnescape(seg); err == nil {
		seg = dec
	}
	return strings.TrimSpace(seg)
}

func parseCoords(latS, lngS string) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(lngS, 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}
