package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/pkg/google"
)

const (
	restaurantType = "restaurant"
	// nearbyRadius is the search radius in meters around a dropped pin.
	nearbyRadius = 100
	// biasRadius widens a name search around the map viewport.
	biasRadius = 500
)

// PlacesResolver resolves map URLs through the Google Places API.
type PlacesResolver struct {
	places   google.Client
	http     *http.Client
	mapHosts []string
	limits   *Limiters
}

// ResolverOption configures a PlacesResolver.
type ResolverOption func(*PlacesResolver)

// WithMapHosts accepts extra hosts as map-provider URLs.
func WithMapHosts(hosts []string) ResolverOption {
	return func(r *PlacesResolver) { r.mapHosts = hosts }
}

// WithShortLinkClient sets the HTTP client used to expand short links.
func WithShortLinkClient(hc *http.Client) ResolverOption {
	return func(r *PlacesResolver) { r.http = hc }
}

// WithResolverLimits shares a rate limiter set with the resolver.
func WithResolverLimits(l *Limiters) ResolverOption {
	return func(r *PlacesResolver) { r.limits = l }
}

// NewPlacesResolver creates a resolver backed by places.
func NewPlacesResolver(places google.Client, opts ...ResolverOption) *PlacesResolver {
	r := &PlacesResolver{
		places: places,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve implements RestaurantResolver. Malformed or unsupported URLs fail
// with an Invalid error before any network call is made.
func (r *PlacesResolver) Resolve(ctx context.Context, sourceURL string) (*model.RestaurantProfile, error) {
	u, err := r.checkURL(sourceURL)
	if err != nil {
		return nil, resilience.NewAdapterError(ServicePlaces, resilience.KindInvalid, err)
	}

	if model.IsShortMapURL(u) {
		u, err = r.expand(ctx, u)
		if err != nil {
			return nil, err
		}
	}

	ref, err := ParsePlaceRef(u)
	if err != nil {
		return nil, resilience.NewAdapterError(ServicePlaces, resilience.KindInvalid, err)
	}

	placeID := ref.PlaceID
	if placeID == "" {
		placeID, err = r.search(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	place, err := call(ctx, r.limits, ServicePlaces, func(ctx context.Context) (*google.Place, error) {
		return r.places.GetPlace(ctx, placeID)
	})
	if err != nil {
		return nil, err
	}

	profile, err := profileFromPlace(place, placeID)
	if err != nil {
		return nil, resilience.NewAdapterError(ServicePlaces, resilience.KindInvalid, err)
	}
	zap.L().Debug("adapter: resolved restaurant",
		zap.String("place_id", profile.PlaceID),
		zap.String("name", profile.Name),
	)
	return profile, nil
}

func (r *PlacesResolver) checkURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("source url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrap(err, "parse source url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, eris.Errorf("source url is not an absolute http(s) url: %s", u.Redacted())
	}
	if !model.IsMapURL(u, r.mapHosts) {
		return nil, eris.Errorf("unsupported map provider host: %s", u.Host)
	}
	return u, nil
}

// expand follows a short link's redirects with a HEAD request and returns
// the final map URL.
func (r *PlacesResolver) expand(ctx context.Context, u *url.URL) (*url.URL, error) {
	final, err := call(ctx, r.limits, ServiceShortLink, func(ctx context.Context) (*url.URL, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "shortlink: create request")
		}
		resp, err := r.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "shortlink: head")
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= 400 {
			return nil, &shortLinkError{status: resp.StatusCode, url: u.String()}
		}
		return resp.Request.URL, nil
	})
	if err != nil {
		return nil, err
	}
	if !model.IsMapURL(final, r.mapHosts) || model.IsShortMapURL(final) {
		return nil, resilience.NewAdapterError(ServiceShortLink, resilience.KindInvalid,
			eris.Errorf("short link resolved to a non-place url: %s", final.Redacted()))
	}
	return final, nil
}

func (r *PlacesResolver) search(ctx context.Context, ref PlaceRef) (string, error) {
	resp, err := call(ctx, r.limits, ServicePlaces, func(ctx context.Context) (*google.SearchResponse, error) {
		if ref.Query != "" {
			req := google.TextSearchRequest{
				TextQuery:      ref.Query,
				IncludedType:   restaurantType,
				MaxResultCount: 5,
			}
			if ref.HasCoords {
				req.LocationBias = &google.LocationBias{Circle: google.Circle{
					Center: google.LatLng{Latitude: ref.Lat, Longitude: ref.Lng},
					Radius: biasRadius,
				}}
			}
			return r.places.TextSearch(ctx, req)
		}
		return r.places.NearbySearch(ctx, google.NearbySearchRequest{
			IncludedTypes: []string{restaurantType},
			LocationRestriction: google.LocationRestriction{Circle: google.Circle{
				Center: google.LatLng{Latitude: ref.Lat, Longitude: ref.Lng},
				Radius: nearbyRadius,
			}},
			MaxResultCount: 5,
			RankPreference: "DISTANCE",
		})
	})
	if err != nil {
		return "", err
	}
	for _, p := range resp.Places {
		if p.ID != "" {
			return p.ID, nil
		}
	}
	return "", resilience.NewAdapterError(ServicePlaces, resilience.KindNotFound,
		eris.Errorf("no restaurant found for %s", ref.describe()))
}

func (ref PlaceRef) describe() string {
	if ref.Query != "" {
		return fmt.Sprintf("query %q", ref.Query)
	}
	return fmt.Sprintf("location %.6f,%.6f", ref.Lat, ref.Lng)
}

func profileFromPlace(p *google.Place, placeID string) (*model.RestaurantProfile, error) {
	if p == nil {
		return nil, eris.New("places returned no details")
	}
	name := strings.TrimSpace(p.DisplayName.Text)
	if name == "" {
		return nil, eris.Errorf("place %s has no name", placeID)
	}

	profile := &model.RestaurantProfile{
		Name:        name,
		Address:     strings.TrimSpace(p.FormattedAddress),
		Website:     strings.TrimSpace(p.WebsiteURI),
		Phone:       firstNonBlank(p.NationalPhoneNumber, p.InternationalPhoneNumber),
		ReviewCount: p.UserRatingCount,
		Types:       append([]string(nil), p.Types...),
		PlaceID:     firstNonBlank(p.ID, placeID),
	}
	if p.Rating != nil {
		if *p.Rating >= 0 && *p.Rating <= 5 {
			r := *p.Rating
			profile.Rating = &r
		} else {
			zap.L().Warn("adapter: dropping out-of-range rating",
				zap.String("place_id", placeID),
				zap.Float64("rating", *p.Rating),
			)
		}
	}
	if lvl, ok := google.PriceLevelValue(p.PriceLevel); ok {
		profile.PriceLevel = &lvl
	}
	if p.RegularOpeningHours != nil {
		profile.OpeningHours = append([]string(nil), p.RegularOpeningHours.WeekdayDescriptions...)
	}
	return profile, nil
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type shortLinkError struct {
	status int
	url    string
}

func (e *shortLinkError) Error() string {
	return fmt.Sprintf("shortlink: %s returned status %d", e.url, e.status)
}

func (e *shortLinkError) HTTPStatus() int { return e.status }
