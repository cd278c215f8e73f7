package offers

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"property-agent/internal/domain"
)

const yamlSeed = `
- id: offer1
  title: Family House in Bronowice
  type: house
  location:
    city: Kraków
    district: Bronowice
  price: 1250000
  number_of_rooms: 5
  garden_available: true
  garden_size_sqft: 300
  amenities:
    - Garage
    - Fireplace
- id: 7
  title: Studio near the Market Square
  type: apartment
  price: "540,000"
  amenities: Lift, Balcony
`

func TestDecodeSeed_YAMLList(t *testing.T) {
	list, err := DecodeSeed(strings.NewReader(yamlSeed), true)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Equal(t, "offer1", list[0].ID)
	require.Equal(t, "Kraków", list[0].Location.City)
	require.Equal(t, 1250000.0, list[0].Price)
	require.Equal(t, 5, list[0].Rooms)
	require.True(t, list[0].GardenAvailable)
	require.Equal(t, 300.0, *list[0].GardenSizeSqft)
	require.Equal(t, []string{"Garage", "Fireplace"}, list[0].Amenities)

	require.Equal(t, "7", list[1].ID)
	require.Equal(t, 540000.0, list[1].Price)
	require.Equal(t, []string{"Lift", "Balcony"}, list[1].Amenities)
}

func TestDecodeSeed_JSONObject(t *testing.T) {
	list, err := DecodeSeed(strings.NewReader(` {"title":"Loft","type":"apartment","price":450000} `), false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Loft", list[0].Title)
}

func TestDecodeSeed_Rejects(t *testing.T) {
	_, err := DecodeSeed(strings.NewReader(`"just a string"`), false)
	require.Error(t, err)

	_, err = DecodeSeed(strings.NewReader(`[1, 2]`), false)
	require.Error(t, err)

	_, err = DecodeSeed(strings.NewReader(`{broken`), false)
	require.Error(t, err)

	list, err := DecodeSeed(strings.NewReader(``), true)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestReadSeedFile_PicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "offers.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlSeed), 0o600))
	jsonPath := filepath.Join(dir, "offers.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"title":"A"},{"title":"B"}]`), 0o600))

	list, err := ReadSeedFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = ReadSeedFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = ReadSeedFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestEncodeYAML_ReadsBack(t *testing.T) {
	o := sampleOffer()
	var buf bytes.Buffer
	require.NoError(t, EncodeYAML(&buf, []domain.Offer{o}))
	require.Contains(t, buf.String(), "vectorId: vec-2")

	list, err := DecodeSeed(&buf, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	o.VectorID = ""
	require.Equal(t, o, list[0])
}
