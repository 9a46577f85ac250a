package sale

import (
	"context"

	"github.com/go-faster/errors"
)

// Service owns sale writes and keeps the catalog (including its active view)
// coherent after every mutation.
type Service struct {
	repo    Repository
	catalog *Catalog
}

// NewService creates a Service over the repository and catalog.
func NewService(repo Repository, catalog *Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// Save validates, normalizes, and persists the sale together with its
// scoping relations in one transaction.
func (s *Service) Save(ctx context.Context, sl *Sale) error {
	sl.Normalize()
	if err := sl.Validate(); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, sl); err != nil {
		return errors.Wrap(err, "save sale")
	}

	s.catalog.Invalidate()
	return nil
}

// DeleteByID removes the sale and its relations. Deleting a missing ID
// returns ErrNotFound.
func (s *Service) DeleteByID(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete sale")
	}
	if !deleted {
		return ErrNotFound
	}

	s.catalog.Invalidate()
	return nil
}
