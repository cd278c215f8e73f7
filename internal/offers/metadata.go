package offers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"property-agent/internal/domain"
)

// storedOffer mirrors domain.Offer but tolerates the loosely typed values
// found in older entries: numbers written as strings, amenities as one
// comma separated string.
type storedOffer struct {
	ID       flexString `json:"id"`
	Title    string     `json:"title"`
	Type     string     `json:"type"`
	Location struct {
		City         string `json:"city"`
		District     string `json:"district"`
		Neighborhood string `json:"neighborhood"`
	} `json:"location"`
	Price           flexFloat  `json:"price"`
	Rooms           flexFloat  `json:"number_of_rooms"`
	Bathrooms       flexFloat  `json:"number_of_bathrooms"`
	SquareFootage   flexFloat  `json:"square_footage"`
	GardenAvailable flexBool   `json:"garden_available"`
	GardenSizeSqft  *flexFloat `json:"garden_size_sqft"`
	Description     string     `json:"description"`
	Amenities       flexList   `json:"amenities"`
	ImageURL        string     `json:"image_url"`
	ListingURL      string     `json:"listing_url"`
}

// FromMetadata converts stored attributes into an Offer. VectorID is left
// empty; it comes from the store's own identifier.
func FromMetadata(md map[string]any) (domain.Offer, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: marshal metadata: %w", err)
	}
	var s storedOffer
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Offer{}, fmt.Errorf("offers: decode metadata: %w", err)
	}
	o := domain.Offer{
		ID:    string(s.ID),
		Title: s.Title,
		Type:  s.Type,
		Location: domain.Location{
			City:         s.Location.City,
			District:     s.Location.District,
			Neighborhood: s.Location.Neighborhood,
		},
		Price:           float64(s.Price),
		Rooms:           int(s.Rooms),
		Bathrooms:       int(s.Bathrooms),
		SquareFootage:   float64(s.SquareFootage),
		GardenAvailable: bool(s.GardenAvailable),
		Description:     s.Description,
		Amenities:       []string(s.Amenities),
		ImageURL:        s.ImageURL,
		ListingURL:      s.ListingURL,
	}
	if s.GardenSizeSqft != nil {
		v := float64(*s.GardenSizeSqft)
		o.GardenSizeSqft = &v
	}
	return o, nil
}

// ToMetadata converts an Offer into stored attributes. The vector id is
// never part of them.
func ToMetadata(o domain.Offer) map[string]any {
	o.VectorID = ""
	raw, _ := json.Marshal(o)
	var md map[string]any
	_ = json.Unmarshal(raw, &md)
	delete(md, "vectorId")
	return md
}

// PageContent is the searchable text embedded for an offer.
func PageContent(o domain.Offer) string {
	garden := "No"
	if o.GardenAvailable {
		garden = "Yes"
	}
	return fmt.Sprintf("%s in %s, %s, %s.\nPrice: %s, Rooms: %d, Bathrooms: %d,\nSquare footage: %s, Garden: %s,\nDescription: %s, Amenities: %s",
		o.Type, o.Location.City, o.Location.District, o.Location.Neighborhood,
		formatNumber(o.Price), o.Rooms, o.Bathrooms,
		formatNumber(o.SquareFootage), garden,
		o.Description, strings.Join(o.Amenities, ", "))
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("expected number, got %s", b)
	}
	str = strings.TrimSpace(strings.ReplaceAll(str, ",", ""))
	if str == "" {
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("expected number, got %q", str)
	}
	*f = flexFloat(v)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexBool(v)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "true", "yes", "1":
		*f = true
	}
	return nil
}

type flexList []string

func (l *flexList) UnmarshalJSON(b []byte) error {
	var items []string
	if err := json.Unmarshal(b, &items); err == nil {
		*l = items
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return nil
	}
	for _, item := range strings.Split(str, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}
