// Package offers keeps property listings in the vector-indexed listing store.
//
// Every entry has two identifiers: the domain id kept in its attributes and
// the store-native vector id. Updates and deletes are addressed by vector id
// only.
package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"property-agent/internal/domain"
	"property-agent/internal/integrations/vector"
	"property-agent/internal/observability"
)

const pageSize = 100

var (
	ErrTitleRequired   = errors.New("offers: title is required")
	ErrInvalidType     = errors.New("offers: type must be house or apartment")
	ErrMissingVectorID = errors.New("offers: vector id is required")
	ErrIDMismatch      = errors.New("offers: id cannot be changed")
	ErrNotFound        = errors.New("offers: offer not found")
	ErrNothingToCreate = errors.New("offers: at least one offer is required")
)

var newUUID = func() string { return uuid.NewString() }

// Index is the subset of the vector store client used by the gateway.
type Index interface {
	Upsert(ctx context.Context, entries []vector.Upsert) error
	Query(ctx context.Context, text string, topK int) ([]vector.Vector, error)
	Range(ctx context.Context, cursor string, limit int) (vector.Page, error)
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (bool, error)
	Delete(ctx context.Context, ids []string) (int, error)
	Fetch(ctx context.Context, ids []string) ([]*vector.Vector, error)
}

type Gateway struct {
	index Index
}

func New(index Index) (*Gateway, error) {
	if index == nil {
		return nil, errors.New("offers: index must not be nil")
	}
	return &Gateway{index: index}, nil
}

// Create stores offers as new entries. Caller ids are kept; missing ids are
// generated. Nothing is written unless every offer is valid.
func (g *Gateway) Create(ctx context.Context, in []domain.Offer) ([]domain.Offer, error) {
	if len(in) == 0 {
		return nil, ErrNothingToCreate
	}
	out := make([]domain.Offer, 0, len(in))
	entries := make([]vector.Upsert, 0, len(in))
	for i, raw := range in {
		o, err := normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("offer %d: %w", i, err)
		}
		if o.ID == "" {
			o.ID = newUUID()
		}
		o.VectorID = newUUID()
		out = append(out, o)
		entries = append(entries, vector.Upsert{ID: o.VectorID, Data: PageContent(o), Metadata: ToMetadata(o)})
	}
	if err := g.index.Upsert(ctx, entries); err != nil {
		return nil, fmt.Errorf("offers: create: %w", err)
	}
	return out, nil
}

// List returns every stored offer, scanning the store page by page.
func (g *Gateway) List(ctx context.Context) ([]domain.Offer, error) {
	var out []domain.Offer
	cursor := "0"
	seen := map[string]bool{}
	for {
		page, err := g.index.Range(ctx, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("offers: list: %w", err)
		}
		for _, v := range page.Vectors {
			o, ok := g.fromVector(ctx, v)
			if !ok || (o.ID == "" && o.Title == "") {
				continue
			}
			out = append(out, o)
		}
		if page.NextCursor == "" || page.NextCursor == cursor || seen[page.NextCursor] {
			return out, nil
		}
		seen[cursor] = true
		cursor = page.NextCursor
	}
}

// Update overwrites the attributes of the entry at vectorID. The searchable
// content is not regenerated. An omitted id is carried over from the stored
// entry; a different one is refused.
func (g *Gateway) Update(ctx context.Context, vectorID string, o domain.Offer) (domain.Offer, error) {
	vectorID = strings.TrimSpace(vectorID)
	if vectorID == "" {
		return domain.Offer{}, ErrMissingVectorID
	}
	o, err := normalize(o)
	if err != nil {
		return domain.Offer{}, err
	}

	found, err := g.index.Fetch(ctx, []string{vectorID})
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: update: %w", err)
	}
	if len(found) == 0 || found[0] == nil {
		return domain.Offer{}, ErrNotFound
	}
	stored, err := FromMetadata(found[0].Metadata)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: update: stored entry %s: %w", vectorID, err)
	}
	switch {
	case o.ID == "":
		o.ID = stored.ID
	case stored.ID != "" && o.ID != stored.ID:
		return domain.Offer{}, ErrIDMismatch
	}

	updated, err := g.index.UpdateMetadata(ctx, vectorID, ToMetadata(o))
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: update: %w", err)
	}
	if !updated {
		return domain.Offer{}, ErrNotFound
	}
	o.VectorID = vectorID
	return o, nil
}

// Delete removes the entry at vectorID.
func (g *Gateway) Delete(ctx context.Context, vectorID string) error {
	vectorID = strings.TrimSpace(vectorID)
	if vectorID == "" {
		return ErrMissingVectorID
	}
	n, err := g.index.Delete(ctx, []string{vectorID})
	if err != nil {
		return fmt.Errorf("offers: delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search returns up to k offers most similar to query, best first.
func (g *Gateway) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	hits, err := g.index.Query(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("offers: search: %w", err)
	}
	docs := make([]domain.Document, 0, len(hits))
	for _, v := range hits {
		o, ok := g.fromVector(ctx, v)
		if !ok {
			continue
		}
		content := v.Data
		if content == "" {
			content = PageContent(o)
		}
		docs = append(docs, domain.Document{VectorID: v.ID, Content: content, Score: v.Score, Offer: o})
	}
	return docs, nil
}

func (g *Gateway) fromVector(ctx context.Context, v vector.Vector) (domain.Offer, bool) {
	o, err := FromMetadata(v.Metadata)
	if err != nil {
		observability.Logger(ctx).Warn("skipping listing with unreadable attributes", "vector_id", v.ID, "err", err)
		return domain.Offer{}, false
	}
	o.VectorID = v.ID
	return o, true
}

func normalize(o domain.Offer) (domain.Offer, error) {
	o.ID = strings.TrimSpace(o.ID)
	o.Title = strings.TrimSpace(o.Title)
	if o.Title == "" {
		return o, ErrTitleRequired
	}
	t, err := normalizeType(o.Type)
	if err != nil {
		return o, err
	}
	o.Type = t
	o.Amenities = uniqueAmenities(o.Amenities)
	if !o.GardenAvailable {
		o.GardenSizeSqft = nil
	}
	o.VectorID = ""
	return o, nil
}

func normalizeType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "":
		return "", nil
	case "house", "home", "detached house":
		return domain.OfferTypeHouse, nil
	case "apartment", "flat", "apartament":
		return domain.OfferTypeApartment, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, t)
}

func uniqueAmenities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
