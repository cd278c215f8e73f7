package usecase

import (
	"context"
	"errors"

	"property-agent/internal/domain"
	"property-agent/internal/offers"
)

type OfferStore interface {
	Create(ctx context.Context, in []domain.Offer) ([]domain.Offer, error)
	List(ctx context.Context) ([]domain.Offer, error)
	Update(ctx context.Context, vectorID string, o domain.Offer) (domain.Offer, error)
	Delete(ctx context.Context, vectorID string) error
}

// OfferService manages listings on behalf of the HTTP surface and the
// ingestion command.
type OfferService struct {
	store OfferStore
}

func NewOfferService(store OfferStore) (*OfferService, error) {
	if store == nil {
		return nil, errors.New("usecase: offer store must not be nil")
	}
	return &OfferService{store: store}, nil
}

func (s *OfferService) Create(ctx context.Context, in []domain.Offer) ([]domain.Offer, error) {
	out, err := s.store.Create(ctx, in)
	if err != nil {
		return nil, offerError(err)
	}
	return out, nil
}

func (s *OfferService) List(ctx context.Context) ([]domain.Offer, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, offerError(err)
	}
	return out, nil
}

func (s *OfferService) Update(ctx context.Context, vectorID string, o domain.Offer) (domain.Offer, error) {
	out, err := s.store.Update(ctx, vectorID, o)
	if err != nil {
		return domain.Offer{}, offerError(err)
	}
	return out, nil
}

func (s *OfferService) Delete(ctx context.Context, vectorID string) error {
	if err := s.store.Delete(ctx, vectorID); err != nil {
		return offerError(err)
	}
	return nil
}

func offerError(err error) error {
	switch {
	case errors.Is(err, offers.ErrNothingToCreate):
		return newError(ErrorInvalidInput, "no_offers", err)
	case errors.Is(err, offers.ErrTitleRequired):
		return newError(ErrorInvalidInput, "missing_title", err)
	case errors.Is(err, offers.ErrInvalidType):
		return newError(ErrorInvalidInput, "invalid_offer_type", err)
	case errors.Is(err, offers.ErrMissingVectorID):
		return newError(ErrorInvalidInput, "missing_vector_id", err)
	case errors.Is(err, offers.ErrIDMismatch):
		return newError(ErrorInvalidInput, "offer_id_immutable", err)
	case errors.Is(err, offers.ErrNotFound):
		return newError(ErrorNotFound, "offer_not_found", err)
	default:
		return upstreamError("vector", err)
	}
}
