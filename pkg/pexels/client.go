// Package pexels provides a client for the Pexels stock video and photo API.
package pexels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.pexels.com"

// Client searches Pexels.
type Client interface {
	SearchVideos(ctx context.Context, req SearchRequest) (*VideoResponse, error)
	SearchPhotos(ctx context.Context, req SearchRequest) (*PhotoResponse, error)
}

// Orientation filters results by frame shape.
type Orientation string

// Orientations accepted by the API.
const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
	Square    Orientation = "square"
)

// SearchRequest holds the query parameters shared by both searches.
type SearchRequest struct {
	Query       string
	PerPage     int
	Orientation Orientation
}

func (r SearchRequest) values() url.Values {
	v := url.Values{}
	v.Set("query", r.Query)
	if r.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(r.PerPage))
	}
	if r.Orientation != "" {
		v.Set("orientation", string(r.Orientation))
	}
	return v
}

// VideoResponse is the response from GET /videos/search.
type VideoResponse struct {
	TotalResults int     `json:"total_results"`
	Videos       []Video `json:"videos"`
}

// Video is a single stock video.
type Video struct {
	ID         int64       `json:"id"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Duration   int         `json:"duration"`
	URL        string      `json:"url"`
	Image      string      `json:"image"`
	User       User        `json:"user"`
	VideoFiles []VideoFile `json:"video_files"`
}

// BestFile returns the highest-resolution file no wider than maxWidth, or
// the first file when none fit.
func (v Video) BestFile(maxWidth int) (VideoFile, bool) {
	if len(v.VideoFiles) == 0 {
		return VideoFile{}, false
	}
	best, found := v.VideoFiles[0], false
	for _, f := range v.VideoFiles {
		if maxWidth > 0 && f.Width > maxWidth {
			continue
		}
		if !found || f.Width > best.Width {
			best, found = f, true
		}
	}
	return best, true
}

// VideoFile is one rendition of a video.
type VideoFile struct {
	ID       int64  `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

// User is the contributor credited for a video.
type User struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PhotoResponse is the response from GET /v1/search.
type PhotoResponse struct {
	TotalResults int     `json:"total_results"`
	Photos       []Photo `json:"photos"`
}

// Photo is a single stock photo.
type Photo struct {
	ID           int64     `json:"id"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	URL          string    `json:"url"`
	Photographer string    `json:"photographer"`
	Src          PhotoSrcs `json:"src"`
}

// PhotoSrcs holds the sized renditions of a photo.
type PhotoSrcs struct {
	Original string `json:"original"`
	Large    string `json:"large"`
	Medium   string `json:"medium"`
	Portrait string `json:"portrait"`
}

// APIError is returned when Pexels responds with a non-200 status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pexels: unexpected status %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a Pexels client.
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

func (c *httpClient) SearchVideos(ctx context.Context, req SearchRequest) (*VideoResponse, error) {
	var out VideoResponse
	if err := c.get(ctx, "/videos/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) SearchPhotos(ctx context.Context, req SearchRequest) (*PhotoResponse, error) {
	var out PhotoResponse
	if err := c.get(ctx, "/v1/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, path string, sr SearchRequest, out any) error {
	if sr.Query == "" {
		return eris.New("pexels: empty query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+sr.values().Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "pexels: create request")
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "pexels: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "pexels: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "pexels: unmarshal response")
	}
	return nil
}
