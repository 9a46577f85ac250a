package discount

import (
	"context"

	"github.com/go-faster/errors"
)

// Service owns discount writes. Every successful mutation invalidates the
// catalog so no reader sees a stale set.
type Service struct {
	repo    Repository
	catalog *Catalog
}

// NewService creates a Service over the repository and the catalog it must
// keep coherent.
func NewService(repo Repository, catalog *Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// Save validates, normalizes, and persists the discount together with its
// scoping relations in one transaction. Validation failures return a
// ValidationError and leave storage untouched.
func (s *Service) Save(ctx context.Context, d *Discount) error {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, d); err != nil {
		return errors.Wrap(err, "save discount")
	}

	s.catalog.Invalidate()
	return nil
}

// DeleteByID removes the discount and its relations. Deleting a missing ID
// returns ErrNotFound.
func (s *Service) DeleteByID(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete discount")
	}
	if !deleted {
		return ErrNotFound
	}

	s.catalog.Invalidate()
	return nil
}

// Reorder rewrites evaluation precedence: the discount at position i in ids
// gets sort order i+1.
func (s *Service) Reorder(ctx context.Context, ids []int64) error {
	if err := s.repo.Reorder(ctx, ids); err != nil {
		return errors.Wrap(err, "reorder discounts")
	}

	s.catalog.Invalidate()
	return nil
}
