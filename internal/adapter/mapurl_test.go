package adapter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaceRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    PlaceRef
		wantErr bool
	}{
		{
			name: "place name with viewport",
			raw:  "https://www.google.com/maps/place/Joe's+Pizza/@40.7306,-73.9866,17z/",
			want: PlaceRef{Query: "Joe's Pizza", Lat: 40.7306, Lng: -73.9866, HasCoords: true},
		},
		{
			name: "data pin wins over viewport",
			raw:  "https://www.google.com/maps/place/Katz%27s+Delicatessen/@40.72,-73.98,17z/data=!3m1!4b1!4m6!3m5!1s0x0:0x0!8m2!3d40.7222!4d-73.9874",
			want: PlaceRef{Query: "Katz's Delicatessen", Lat: 40.7222, Lng: -73.9874, HasCoords: true},
		},
		{
			name: "place id parameter",
			raw:  "https://www.google.com/maps/search/?api=1&query=pizza&query_place_id=ChIJabc",
			want: PlaceRef{PlaceID: "ChIJabc", Query: "pizza"},
		},
		{
			name: "q place id",
			raw:  "https://maps.google.com/?q=place_id:ChIJxyz",
			want: PlaceRef{PlaceID: "ChIJxyz"},
		},
		{
			name: "coordinates only",
			raw:  "https://www.google.com/maps/@51.5007,-0.1246,15z",
			want: PlaceRef{Lat: 51.5007, Lng: -0.1246, HasCoords: true},
		},
		{
			name: "place without trailing slash",
			raw:  "https://maps.example/place/X",
			want: PlaceRef{Query: "X"},
		},
		{
			name:    "no reference",
			raw:     "https://www.google.com/maps",
			wantErr: true,
		},
		{
			name:    "out of range coordinates",
			raw:     "https://www.google.com/maps/@123.0,-0.1,15z",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)

			got, err := ParsePlaceRef(u)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.PlaceID, got.PlaceID)
			assert.Equal(t, tt.want.Query, got.Query)
			assert.Equal(t, tt.want.HasCoords, got.HasCoords)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lng, got.Lng, 1e-9)
		})
	}
}
