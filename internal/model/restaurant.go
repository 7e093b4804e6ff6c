package model

// RestaurantProfile is the output of restaurant extraction.
type RestaurantProfile struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Website      string   `json:"website,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	ReviewCount  *int     `json:"review_count,omitempty"`
	PriceLevel   *int     `json:"price_level,omitempty"`
	OpeningHours []string `json:"opening_hours,omitempty"`
	Types        []string `json:"types,omitempty"`
	PlaceID      string   `json:"place_id"`
}

func (*RestaurantProfile) stepOutput() StepName { return StepRestaurantExtraction }

// Clone returns a deep copy.
func (p *RestaurantProfile) Clone() *RestaurantProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Rating != nil {
		r := *p.Rating
		c.Rating = &r
	}
	if p.ReviewCount != nil {
		n := *p.ReviewCount
		c.ReviewCount = &n
	}
	if p.PriceLevel != nil {
		l := *p.PriceLevel
		c.PriceLevel = &l
	}
	c.OpeningHours = append([]string(nil), p.OpeningHours...)
	c.Types = append([]string(nil), p.Types...)
	return &c
}
