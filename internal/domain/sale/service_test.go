package sale

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
)

func TestService_Save(t *testing.T) {
	repo := &mockRepo{}
	catalog := NewCatalog(repo)
	svc := NewService(repo, catalog)
	ctx := context.Background()

	_, err := catalog.Active(ctx, fixedNow)
	require.NoError(t, err)

	s := &Sale{
		Name:           "Summer",
		DiscountType:   TypePercent,
		DiscountAmount: dec("0.2"),
		ProductIDs:     []int64{7},
		Enabled:        true,
	}
	require.NoError(t, svc.Save(ctx, s))

	require.NotNil(t, repo.saved)
	assert.False(t, repo.saved.AllProducts)
	assert.True(t, repo.saved.AllProductTypes)
	assert.True(t, repo.saved.AllGroups)

	// The active view must reload after the write.
	_, err = catalog.Active(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.loadCalls)
}

func TestService_Save_Invalid(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, NewCatalog(repo))

	tests := []struct {
		name string
		sale Sale
	}{
		{"missing name", Sale{DiscountType: TypeFlat, DiscountAmount: dec("5")}},
		{"unknown type", Sale{Name: "X", DiscountType: "bogo", DiscountAmount: dec("5")}},
		{"negative amount", Sale{Name: "X", DiscountType: TypeFlat, DiscountAmount: dec("-1")}},
		{"percent above one", Sale{Name: "X", DiscountType: TypePercent, DiscountAmount: dec("1.5")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Save(context.Background(), &tt.sale)

			var verr *discount.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Nil(t, repo.saved)
		})
	}
}

func TestService_DeleteByID(t *testing.T) {
	t.Run("existing", func(t *testing.T) {
		repo := &mockRepo{deleteExists: true}
		svc := NewService(repo, NewCatalog(repo))

		require.NoError(t, svc.DeleteByID(context.Background(), 3))
		assert.Equal(t, int64(3), repo.deleted)
	})

	t.Run("missing", func(t *testing.T) {
		repo := &mockRepo{}
		svc := NewService(repo, NewCatalog(repo))

		err := svc.DeleteByID(context.Background(), 3)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
