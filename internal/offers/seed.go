package offers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"property-agent/internal/domain"
)

// ReadSeedFile loads offers from a JSON or YAML file, chosen by extension.
func ReadSeedFile(path string) ([]domain.Offer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("offers: open seed: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeSeed(f, true)
	default:
		return DecodeSeed(f, false)
	}
}

// DecodeSeed reads either a single offer or a list of offers. Values are
// converted with the same tolerance as stored attributes.
func DecodeSeed(r io.Reader, isYAML bool) ([]domain.Offer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("offers: read seed: %w", err)
	}

	var doc any
	if isYAML {
		err = yaml.Unmarshal(raw, &doc)
	} else {
		err = json.Unmarshal(bytes.TrimSpace(raw), &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("offers: decode seed: %w", err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("offers: decode seed: expected an object or a list, got %T", doc)
	}

	out := make([]domain.Offer, 0, len(items))
	for i, item := range items {
		md, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("offers: decode seed: entry %d is not an object", i)
		}
		o, err := FromMetadata(md)
		if err != nil {
			return nil, fmt.Errorf("offers: decode seed: entry %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// EncodeYAML writes offers in the seed format ReadSeedFile accepts.
func EncodeYAML(w io.Writer, list []domain.Offer) error {
	items := make([]map[string]any, 0, len(list))
	for _, o := range list {
		md := ToMetadata(o)
		if o.VectorID != "" {
			md["vectorId"] = o.VectorID
		}
		items = append(items, md)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("offers: encode yaml: %w", err)
	}
	return enc.Close()
}
