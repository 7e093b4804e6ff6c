package model

// ExtractionMethod records how a menu was obtained.
type ExtractionMethod string

const (
	// ExtractionAPI means the menu came from a structured extraction API.
	ExtractionAPI ExtractionMethod = "api"
	// ExtractionScrape means the menu was parsed out of scraped page content.
	ExtractionScrape ExtractionMethod = "scrape"
	// ExtractionHybrid means both sources contributed items.
	ExtractionHybrid ExtractionMethod = "hybrid"
)

// MenuItem is a single dish or drink.
type MenuItem struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
}

// MenuCategory groups items under a heading, in menu order.
type MenuCategory struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// MenuModel is the output of menu extraction.
type MenuModel struct {
	Categories       []MenuCategory   `json:"categories"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	SourceURL        string           `json:"source_url,omitempty"`
}

func (*MenuModel) stepOutput() StepName { return StepMenuExtraction }

// ItemCount returns the number of items across all categories.
func (m *MenuModel) ItemCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, c := range m.Categories {
		n += len(c.Items)
	}
	return n
}

// Clone returns a deep copy.
func (m *MenuModel) Clone() *MenuModel {
	if m == nil {
		return nil
	}
	c := *m
	c.Categories = make([]MenuCategory, len(m.Categories))
	for i, cat := range m.Categories {
		c.Categories[i] = MenuCategory{
			Name:  cat.Name,
			Items: append([]MenuItem(nil), cat.Items...),
		}
	}
	return &c
}
