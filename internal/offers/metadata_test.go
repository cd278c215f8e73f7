package offers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"property-agent/internal/domain"
)

func gardenSize(v float64) *float64 { return &v }

func sampleOffer() domain.Offer {
	return domain.Offer{
		ID:              "offer2",
		VectorID:        "vec-2",
		Title:           "Modern Apartment in Kazimierz",
		Type:            domain.OfferTypeApartment,
		Location:        domain.Location{City: "Kraków", District: "Kazimierz", Neighborhood: "Old Jewish Quarter"},
		Price:           980000,
		Rooms:           3,
		Bathrooms:       2,
		SquareFootage:   85.5,
		GardenAvailable: true,
		GardenSizeSqft:  gardenSize(200),
		Description:     "Bright and quiet.",
		Amenities:       []string{"Garden", "Chimney"},
		ImageURL:        "https://example.com/img.jpg",
		ListingURL:      "https://example.com/offer2",
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	o := sampleOffer()
	md := ToMetadata(o)
	require.NotContains(t, md, "vectorId")
	require.Equal(t, "offer2", md["id"])

	back, err := FromMetadata(md)
	require.NoError(t, err)
	o.VectorID = ""
	require.Equal(t, o, back)
}

func TestFromMetadata_Tolerant(t *testing.T) {
	o, err := FromMetadata(map[string]any{
		"id":                  42,
		"title":               "Legacy",
		"price":               "1,250,000",
		"number_of_rooms":     "4",
		"garden_available":    "yes",
		"garden_size_sqft":    nil,
		"amenities":           "Pool, ,Sauna",
		"number_of_bathrooms": 1.0,
	})
	require.NoError(t, err)
	require.Equal(t, "42", o.ID)
	require.InDelta(t, 1250000, o.Price, 1e-9)
	require.Equal(t, 4, o.Rooms)
	require.Equal(t, 1, o.Bathrooms)
	require.True(t, o.GardenAvailable)
	require.Nil(t, o.GardenSizeSqft)
	require.Equal(t, []string{"Pool", "Sauna"}, o.Amenities)
}

func TestFromMetadata_Unreadable(t *testing.T) {
	_, err := FromMetadata(map[string]any{"price": "cheap"})
	require.Error(t, err)
	_, err = FromMetadata(map[string]any{"location": []any{"x"}})
	require.Error(t, err)
}

func TestPageContent(t *testing.T) {
	require.Equal(t,
		"apartment in Kraków, Kazimierz, Old Jewish Quarter.\n"+
			"Price: 980000, Rooms: 3, Bathrooms: 2,\n"+
			"Square footage: 85.5, Garden: Yes,\n"+
			"Description: Bright and quiet., Amenities: Garden, Chimney",
		PageContent(sampleOffer()))
}
