// Package model defines the data carried through a video generation run.
package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Style is the creative tone requested for the video.
type Style string

const (
	StyleCasual       Style = "casual"
	StyleProfessional Style = "professional"
	StyleTrendy       Style = "trendy"
	StyleElegant      Style = "elegant"
	StyleFun          Style = "fun"
	StyleFamily       Style = "family"
	StyleLuxury       Style = "luxury"
	StyleStreetFood   Style = "street_food"
)

// Styles lists every accepted style in a stable order.
var Styles = []Style{
	StyleCasual,
	StyleProfessional,
	StyleTrendy,
	StyleElegant,
	StyleFun,
	StyleFamily,
	StyleLuxury,
	StyleStreetFood,
}

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	for _, known := range Styles {
		if s == known {
			return true
		}
	}
	return false
}

// SourceRequest is the immutable input of a run.
type SourceRequest struct {
	SourceURL       string `json:"source_url"`
	Style           Style  `json:"style"`
	DurationSeconds int    `json:"duration_seconds"`
}

// ValidationError reports a malformed SourceRequest. It is returned before a
// run is created and never stored on a RunState.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RequestPolicy bounds what a SourceRequest may contain.
type RequestPolicy struct {
	// MapHosts are additional hosts accepted as map-provider place URLs on
	// top of the built-in Google Maps hosts.
	MapHosts    []string
	MinDuration int
	MaxDuration int
}

// DefaultRequestPolicy returns the policy used when nothing is configured.
func DefaultRequestPolicy() RequestPolicy {
	return RequestPolicy{
		MinDuration: 15,
		MaxDuration: 60,
	}
}

// Validate checks req against the policy.
func (p RequestPolicy) Validate(req SourceRequest) error {
	raw := strings.TrimSpace(req.SourceURL)
	if raw == "" {
		return &ValidationError{Field: "source_url", Reason: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "source_url", Reason: "is not an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "source_url", Reason: "must use http or https"}
	}
	if !IsMapURL(u, p.MapHosts) {
		return &ValidationError{Field: "source_url", Reason: fmt.Sprintf("host %q is not a supported map provider", u.Host)}
	}

	if !req.Style.Valid() {
		return &ValidationError{Field: "style", Reason: fmt.Sprintf("unknown style %q", req.Style)}
	}

	minD, maxD := p.MinDuration, p.MaxDuration
	if minD <= 0 {
		minD = 15
	}
	if maxD <= 0 {
		maxD = 60
	}
	if req.DurationSeconds < minD || req.DurationSeconds > maxD {
		return &ValidationError{
			Field:  "duration_seconds",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", minD, maxD, req.DurationSeconds),
		}
	}
	return nil
}

// IsMapURL reports whether u points at a supported map provider. Google Maps
// hosts (including regional TLDs and short links) are always accepted; extra
// hosts match exactly, case-insensitively.
func IsMapURL(u *url.URL, extraHosts []string) bool {
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)

	for _, h := range extraHosts {
		if host == strings.ToLower(strings.TrimSpace(h)) {
			return true
		}
	}

	switch {
	case host == "maps.app.goo.gl":
		return true
	case host == "goo.gl":
		return strings.HasPrefix(path, "/maps")
	case strings.HasPrefix(host, "maps.google."):
		return true
	case strings.HasPrefix(host, "www.google.") || strings.HasPrefix(host, "google."):
		return strings.HasPrefix(path, "/maps")
	}
	return false
}

// IsShortMapURL reports whether u is a map short link that has to be
// resolved before a place can be read from it.
func IsShortMapURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "maps.app.goo.gl" || (host == "goo.gl" && strings.HasPrefix(strings.ToLower(u.Path), "/maps"))
}
