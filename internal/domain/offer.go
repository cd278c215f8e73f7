package domain

const (
	OfferTypeHouse     = "house"
	OfferTypeApartment = "apartment"
)

// Location is where a listing is situated.
type Location struct {
	City         string `json:"city"`
	District     string `json:"district"`
	Neighborhood string `json:"neighborhood"`
}

// Offer is a property listing.
//
// ID is assigned by the application and survives edits. VectorID is assigned
// by the listing store when the entry is inserted and is the only key used to
// address updates and deletes; it is never written into stored attributes.
type Offer struct {
	ID              string   `json:"id"`
	VectorID        string   `json:"vectorId,omitempty"`
	Title           string   `json:"title"`
	Type            string   `json:"type"`
	Location        Location `json:"location"`
	Price           float64  `json:"price"`
	Rooms           int      `json:"number_of_rooms"`
	Bathrooms       int      `json:"number_of_bathrooms"`
	SquareFootage   float64  `json:"square_footage"`
	GardenAvailable bool     `json:"garden_available"`
	GardenSizeSqft  *float64 `json:"garden_size_sqft,omitempty"`
	Description     string   `json:"description"`
	Amenities       []string `json:"amenities"`
	ImageURL        string   `json:"image_url"`
	ListingURL      string   `json:"listing_url,omitempty"`
}

// Document is a similarity search hit whose attributes have already been
// converted into an Offer.
type Document struct {
	VectorID string  `json:"vectorId"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Offer    Offer   `json:"offer"`
}
