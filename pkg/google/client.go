// Package google provides a client for the Google Places API (New).
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// DetailsFieldMask selects the place fields a restaurant profile needs.
const DetailsFieldMask = "id,displayName,formattedAddress,websiteUri,nationalPhoneNumber," +
	"internationalPhoneNumber,rating,userRatingCount,priceLevel,regularOpeningHours.weekdayDescriptions,types"

// Client performs Google Places API operations.
type Client interface {
	// TextSearch finds places matching a free-text query.
	TextSearch(ctx context.Context, req TextSearchRequest) (*SearchResponse, error)
	// NearbySearch finds places of the included types around a point.
	NearbySearch(ctx context.Context, req NearbySearchRequest) (*SearchResponse, error)
	// GetPlace fetches details for a place ID.
	GetPlace(ctx context.Context, placeID string) (*Place, error)
}

// SearchResponse is the response from Text Search and Nearby Search.
type SearchResponse struct {
	Places []Place `json:"places"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                       string        `json:"id,omitempty"`
	DisplayName              DisplayName   `json:"displayName"`
	FormattedAddress         string        `json:"formattedAddress,omitempty"`
	WebsiteURI               string        `json:"websiteUri,omitempty"`
	NationalPhoneNumber      string        `json:"nationalPhoneNumber,omitempty"`
	InternationalPhoneNumber string        `json:"internationalPhoneNumber,omitempty"`
	Rating                   *float64      `json:"rating,omitempty"`
	UserRatingCount          *int          `json:"userRatingCount,omitempty"`
	PriceLevel               string        `json:"priceLevel,omitempty"`
	RegularOpeningHours      *OpeningHours `json:"regularOpeningHours,omitempty"`
	Types                    []string      `json:"types,omitempty"`
	Location                 *LatLng       `json:"location,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// OpeningHours holds the human-readable weekly schedule.
type OpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

// LatLng is a geographic coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Circle restricts a search to a radius around a point.
type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// LocationBias wraps a circle for the searchText locationBias field.
type LocationBias struct {
	Circle Circle `json:"circle"`
}

// LocationRestriction wraps a circle for searchNearby.
type LocationRestriction struct {
	Circle Circle `json:"circle"`
}

// TextSearchRequest is the body of a places:searchText call.
type TextSearchRequest struct {
	TextQuery      string        `json:"textQuery"`
	IncludedType   string        `json:"includedType,omitempty"`
	LocationBias   *LocationBias `json:"locationBias,omitempty"`
	MaxResultCount int           `json:"maxResultCount,omitempty"`
}

// NearbySearchRequest is the body of a places:searchNearby call.
type NearbySearchRequest struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	LocationRestriction LocationRestriction `json:"locationRestriction"`
	MaxResultCount      int                 `json:"maxResultCount,omitempty"`
	RankPreference      string              `json:"rankPreference,omitempty"`
}

// PriceLevelValue converts the API's enum string into 0-4.
func PriceLevelValue(level string) (int, bool) {
	switch level {
	case "PRICE_LEVEL_FREE":
		return 0, true
	case "PRICE_LEVEL_INEXPENSIVE":
		return 1, true
	case "PRICE_LEVEL_MODERATE":
		return 2, true
	case "PRICE_LEVEL_EXPENSIVE":
		return 3, true
	case "PRICE_LEVEL_VERY_EXPENSIVE":
		return 4, true
	default:
		return 0, false
	}
}

// APIError is returned when the Places API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func searchFieldMask() string {
	fields := strings.Split(DetailsFieldMask, ",")
	for i, f := range fields {
		fields[i] = "places." + f
	}
	return strings.Join(append(fields, "places.location"), ",")
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*SearchResponse, error) {
	var result SearchResponse
	if err := c.post(ctx, "/places:searchText", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) NearbySearch(ctx context.Context, req NearbySearchRequest) (*SearchResponse, error) {
	var result SearchResponse
	if err := c.post(ctx, "/places:searchNearby", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetPlace(ctx context.Context, placeID string) (*Place, error) {
	if placeID == "" {
		return nil, eris.New("google: empty place id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+url.PathEscape(placeID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("X-Goog-FieldMask", DetailsFieldMask)

	var place Place
	if err := c.do(req, &place); err != nil {
		return nil, err
	}
	return &place, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-FieldMask", searchFieldMask())

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "google: unmarshal response")
	}
	return nil
}
