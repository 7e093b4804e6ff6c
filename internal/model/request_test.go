package model

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPolicy_Validate(t *testing.T) {
	t.Parallel()

	policy := DefaultRequestPolicy()
	policy.MapHosts = []string{"maps.example"}

	tests := []struct {
		name      string
		req       SourceRequest
		wantField string
	}{
		{
			name: "google place url",
			req:  SourceRequest{SourceURL: "https://www.google.com/maps/place/Joe's+Pizza/@40.73,-73.98,17z", Style: StyleCasual, DurationSeconds: 30},
		},
		{
			name: "short link",
			req:  SourceRequest{SourceURL: "https://maps.app.goo.gl/abc123", Style: StyleLuxury, DurationSeconds: 15},
		},
		{
			name: "configured host",
			req:  SourceRequest{SourceURL: "https://maps.example/place/X", Style: StyleStreetFood, DurationSeconds: 60},
		},
		{
			name:      "empty url",
			req:       SourceRequest{Style: StyleCasual, DurationSeconds: 30},
			wantField: "source_url",
		},
		{
			name:      "relative url",
			req:       SourceRequest{SourceURL: "/maps/place/x", Style: StyleCasual, DurationSeconds: 30},
			wantField: "source_url",
		},
		{
			name:      "unsupported host",
			req:       SourceRequest{SourceURL: "https://example.com/place/x", Style: StyleCasual, DurationSeconds: 30},
			wantField: "source_url",
		},
		{
			name:      "google search is not maps",
			req:       SourceRequest{SourceURL: "https://www.google.com/search?q=pizza", Style: StyleCasual, DurationSeconds: 30},
			wantField: "source_url",
		},
		{
			name:      "ftp scheme",
			req:       SourceRequest{SourceURL: "ftp://maps.google.com/place/x", Style: StyleCasual, DurationSeconds: 30},
			wantField: "source_url",
		},
		{
			name:      "unknown style",
			req:       SourceRequest{SourceURL: "https://maps.google.com/place/x", Style: "noir", DurationSeconds: 30},
			wantField: "style",
		},
		{
			name:      "too short",
			req:       SourceRequest{SourceURL: "https://maps.google.com/place/x", Style: StyleCasual, DurationSeconds: 14},
			wantField: "duration_seconds",
		},
		{
			name:      "too long",
			req:       SourceRequest{SourceURL: "https://maps.google.com/place/x", Style: StyleCasual, DurationSeconds: 61},
			wantField: "duration_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := policy.Validate(tt.req)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestIsShortMapURL(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]bool{
		"https://maps.app.goo.gl/xyz":                true,
		"https://goo.gl/maps/xyz":                    true,
		"https://goo.gl/other":                       false,
		"https://www.google.com/maps/place/Foo/@1,2": false,
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, IsShortMapURL(u), raw)
	}
}

func TestStyle_Valid(t *testing.T) {
	t.Parallel()

	for _, s := range Styles {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Style("").Valid())
	assert.False(t, Style("Casual").Valid())
}
