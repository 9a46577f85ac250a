package discount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/promotion-engine/internal/domain/product"
)

// --- Mock implementations shared by the package tests ---

type mockRepo struct {
	discounts []Discount
	loadCalls int
	loadErr   error

	saved        *Discount
	saveErr      error
	deleted      int64
	deleteExists bool
	reordered    []int64
	incremented  []string
	clearedID    int64
}

func (m *mockRepo) LoadAll(_ context.Context) ([]Discount, error) {
	m.loadCalls++
	return m.discounts, m.loadErr
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Discount, error) {
	for i := range m.discounts {
		if m.discounts[i].Enabled && m.discounts[i].Code == code {
			return &m.discounts[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) FindAnyByCode(_ context.Context, code string) (*Discount, error) {
	for i := range m.discounts {
		if m.discounts[i].Code == code {
			return &m.discounts[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Save(_ context.Context, d *Discount) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if d.ID == 0 {
		d.ID = int64(len(m.discounts) + 1)
	}
	m.saved = d
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) (bool, error) {
	m.deleted = id
	return m.deleteExists, nil
}

func (m *mockRepo) Reorder(_ context.Context, ids []int64) error {
	m.reordered = ids
	return nil
}

func (m *mockRepo) IncrementTotalUses(_ context.Context, code string) error {
	m.incremented = append(m.incremented, code)
	return nil
}

func (m *mockRepo) ClearUsage(_ context.Context, id int64) error {
	m.clearedID = id
	return nil
}

type mockUsage struct {
	uses     map[[2]int64]int
	recorded [][2]int64
}

func (m *mockUsage) Uses(_ context.Context, customerID, discountID int64) (int, error) {
	return m.uses[[2]int64{customerID, discountID}], nil
}

func (m *mockUsage) RecordUse(_ context.Context, customerID, discountID int64) error {
	key := [2]int64{customerID, discountID}
	if m.uses == nil {
		m.uses = make(map[[2]int64]int)
	}
	m.uses[key]++
	m.recorded = append(m.recorded, key)
	return nil
}

type mockHistory struct {
	counts map[string]int
}

func (m *mockHistory) CouponUsesByEmail(_ context.Context, email, _ string) (int, error) {
	return m.counts[email], nil
}

type mockGroups struct {
	groups     map[int64][]int64
	registered map[int64]bool
	emails     map[int64]string
}

func (m *mockGroups) GroupIDs(_ context.Context, customerID int64) ([]int64, error) {
	return m.groups[customerID], nil
}

func (m *mockGroups) IsRegistered(_ context.Context, customerID int64) (bool, error) {
	return m.registered[customerID], nil
}

func (m *mockGroups) Email(_ context.Context, customerID int64) (string, error) {
	return m.emails[customerID], nil
}

type mockCategories struct {
	related map[int64][]int64
}

func (m *mockCategories) RelatedCategories(_ context.Context, sourceIDs []int64) ([]int64, error) {
	var out []int64
	for _, id := range sourceIDs {
		out = append(out, m.related[id]...)
	}
	return out, nil
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestMatcher(repo *mockRepo, usage *mockUsage, history *mockHistory, groups *mockGroups, cats *mockCategories) *Matcher {
	if usage == nil {
		usage = &mockUsage{}
	}
	if history == nil {
		history = &mockHistory{}
	}
	if groups == nil {
		groups = &mockGroups{}
	}
	if cats == nil {
		cats = &mockCategories{}
	}
	m := NewMatcher(NewCatalog(repo), usage, history, groups, cats)
	m.now = func() time.Time { return fixedNow }
	return m
}

func timePtr(t time.Time) *time.Time { return &t }

// --- MatchCode tests ---

func TestMatchCode_Gates(t *testing.T) {
	tomorrow := fixedNow.Add(24 * time.Hour)
	yesterday := fixedNow.Add(-24 * time.Hour)

	tests := []struct {
		name       string
		discount   Discount
		code       string
		customerID int64
		usage      *mockUsage
		history    *mockHistory
		groups     *mockGroups
		wantOK     bool
		wantReason string
	}{
		{
			name:       "unknown code",
			discount:   Discount{ID: 1, Code: "SAVE10", Enabled: true, AllGroups: true},
			code:       "BOGUS",
			wantReason: ReasonNotValid,
		},
		{
			name:       "disabled discount is invisible",
			discount:   Discount{ID: 1, Code: "SAVE10", Enabled: false, AllGroups: true},
			code:       "SAVE10",
			wantReason: ReasonNotValid,
		},
		{
			name:       "code comparison is case-sensitive",
			discount:   Discount{ID: 1, Code: "SAVE10", Enabled: true, AllGroups: true},
			code:       "save10",
			wantReason: ReasonNotValid,
		},
		{
			name: "total use limit reached",
			discount: Discount{
				ID: 1, Code: "SAVE10", Enabled: true, AllGroups: true,
				TotalUseLimit: 2, TotalUses: 2,
			},
			code:       "SAVE10",
			wantReason: ReasonLimitReached,
		},
		{
			name: "total uses under limit passes",
			discount: Discount{
				ID: 1, Code: "SAVE10", Enabled: true, AllGroups: true,
				TotalUseLimit: 2, TotalUses: 1,
			},
			code:   "SAVE10",
			wantOK: true,
		},
		{
			name: "starts tomorrow",
			discount: Discount{
				ID: 1, Code: "SOON", Enabled: true, AllGroups: true,
				DateFrom: timePtr(tomorrow),
			},
			code:       "SOON",
			wantReason: ReasonOutOfDate,
		},
		{
			name: "ended yesterday",
			discount: Discount{
				ID: 1, Code: "LATE", Enabled: true, AllGroups: true,
				DateTo: timePtr(yesterday),
			},
			code:       "LATE",
			wantReason: ReasonOutOfDate,
		},
		{
			name: "inside window passes",
			discount: Discount{
				ID: 1, Code: "NOW", Enabled: true, AllGroups: true,
				DateFrom: timePtr(yesterday), DateTo: timePtr(tomorrow),
			},
			code:   "NOW",
			wantOK: true,
		},
		{
			name: "group-scoped, anonymous customer rejected",
			discount: Discount{
				ID: 1, Code: "VIP", Enabled: true,
				AllGroups: false, UserGroupIDs: []int64{10},
			},
			code:       "VIP",
			wantReason: ReasonNotForCustomer,
		},
		{
			name: "group-scoped, customer outside groups rejected",
			discount: Discount{
				ID: 1, Code: "VIP", Enabled: true,
				AllGroups: false, UserGroupIDs: []int64{10},
			},
			code:       "VIP",
			customerID: 7,
			groups:     &mockGroups{groups: map[int64][]int64{7: {20, 30}}},
			wantReason: ReasonNotForCustomer,
		},
		{
			name: "group-scoped, intersecting customer passes",
			discount: Discount{
				ID: 1, Code: "VIP", Enabled: true,
				AllGroups: false, UserGroupIDs: []int64{10},
			},
			code:       "VIP",
			customerID: 7,
			groups: &mockGroups{
				groups:     map[int64][]int64{7: {10, 30}},
				registered: map[int64]bool{7: true},
			},
			wantOK: true,
		},
		{
			name: "per-user limit rejects guests",
			discount: Discount{
				ID: 1, Code: "ONCE", Enabled: true, AllGroups: true,
				PerUserLimit: 1,
			},
			code:       "ONCE",
			customerID: 7,
			groups:     &mockGroups{registered: map[int64]bool{7: false}},
			wantReason: ReasonLoggedInOnly,
		},
		{
			name: "per-user limit exhausted",
			discount: Discount{
				ID: 1, Code: "ONCE", Enabled: true, AllGroups: true,
				PerUserLimit: 1,
			},
			code:       "ONCE",
			customerID: 7,
			groups:     &mockGroups{registered: map[int64]bool{7: true}},
			usage:      &mockUsage{uses: map[[2]int64]int{{7, 1}: 1}},
			wantReason: ReasonAllUsedUp,
		},
		{
			name: "per-user usage on a different discount does not block",
			discount: Discount{
				ID: 1, Code: "ONCE", Enabled: true, AllGroups: true,
				PerUserLimit: 1,
			},
			code:       "ONCE",
			customerID: 7,
			groups:     &mockGroups{registered: map[int64]bool{7: true}},
			usage:      &mockUsage{uses: map[[2]int64]int{{7, 99}: 5}},
			wantOK:     true,
		},
		{
			name: "per-email limit exhausted",
			discount: Discount{
				ID: 1, Code: "MAIL2", Enabled: true, AllGroups: true,
				PerEmailLimit: 2,
			},
			code:       "MAIL2",
			customerID: 7,
			groups:     &mockGroups{emails: map[int64]string{7: "a@example.com"}},
			history:    &mockHistory{counts: map[string]int{"a@example.com": 2}},
			wantReason: "This coupon is limited to 2 uses.",
		},
		{
			name: "per-email limit with room passes",
			discount: Discount{
				ID: 1, Code: "MAIL2", Enabled: true, AllGroups: true,
				PerEmailLimit: 2,
			},
			code:       "MAIL2",
			customerID: 7,
			groups:     &mockGroups{emails: map[int64]string{7: "a@example.com"}},
			history:    &mockHistory{counts: map[string]int{"a@example.com": 1}},
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{discounts: []Discount{tt.discount}}
			m := newTestMatcher(repo, tt.usage, tt.history, tt.groups, nil)

			got, err := m.MatchCode(context.Background(), tt.code, tt.customerID)

			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, got.OK)
			if !tt.wantOK {
				assert.Equal(t, tt.wantReason, got.Reason)
			} else {
				assert.Empty(t, got.Reason)
			}
		})
	}
}

func TestMatchCode_Deterministic(t *testing.T) {
	repo := &mockRepo{discounts: []Discount{
		{ID: 1, Code: "SAVE10", Enabled: true, AllGroups: true, TotalUseLimit: 2, TotalUses: 2},
	}}
	m := newTestMatcher(repo, nil, nil, nil, nil)

	first, err := m.MatchCode(context.Background(), "SAVE10", 0)
	require.NoError(t, err)
	second, err := m.MatchCode(context.Background(), "SAVE10", 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, ReasonLimitReached, first.Reason)
}

// --- MatchLineItem tests ---

func promotableItem(purchasableID int64) LineItem {
	return LineItem{
		PurchasableID: purchasableID,
		Qty:           1,
		Purchasable:   &product.Product{ID: purchasableID, Promotable: true},
	}
}

func TestMatchLineItem(t *testing.T) {
	tests := []struct {
		name     string
		item     LineItem
		discount Discount
		cats     *mockCategories
		want     bool
	}{
		{
			name:     "universal discount matches promotable item",
			item:     promotableItem(5),
			discount: Discount{AllPurchasables: true, AllCategories: true},
			want:     true,
		},
		{
			name: "on-sale item excluded",
			item: LineItem{
				PurchasableID: 5, OnSale: true,
				Purchasable: &product.Product{ID: 5, Promotable: true},
			},
			discount: Discount{ExcludeOnSale: true, AllPurchasables: true, AllCategories: true},
			want:     false,
		},
		{
			name: "on-sale item allowed when not excluded",
			item: LineItem{
				PurchasableID: 5, OnSale: true,
				Purchasable: &product.Product{ID: 5, Promotable: true},
			},
			discount: Discount{AllPurchasables: true, AllCategories: true},
			want:     true,
		},
		{
			name: "non-promotable purchasable never matches",
			item: LineItem{
				PurchasableID: 5,
				Purchasable:   &product.Product{ID: 5, Promotable: false},
			},
			discount: Discount{AllPurchasables: true, AllCategories: true},
			want:     false,
		},
		{
			name:     "purchasable-scoped, item in set",
			item:     promotableItem(5),
			discount: Discount{PurchasableIDs: []int64{5, 6}, AllCategories: true},
			want:     true,
		},
		{
			name:     "purchasable-scoped, item outside set",
			item:     promotableItem(9),
			discount: Discount{PurchasableIDs: []int64{5, 6}, AllCategories: true},
			want:     false,
		},
		{
			name:     "category-scoped, related category",
			item:     promotableItem(5),
			discount: Discount{AllPurchasables: true, CategoryIDs: []int64{100}},
			cats:     &mockCategories{related: map[int64][]int64{5: {100, 200}}},
			want:     true,
		},
		{
			name:     "category-scoped, unrelated category",
			item:     promotableItem(5),
			discount: Discount{AllPurchasables: true, CategoryIDs: []int64{100}},
			cats:     &mockCategories{related: map[int64][]int64{5: {200}}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher(&mockRepo{}, nil, nil, nil, tt.cats)

			got, err := m.MatchLineItem(context.Background(), tt.item, &tt.discount)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchLineItem_VariantCategoryViaParentProduct(t *testing.T) {
	parent := &product.Product{ID: 3, Promotable: true}
	item := LineItem{
		PurchasableID: 30,
		Purchasable:   &product.Variant{ID: 30, Product: parent},
	}
	// The category relates to the parent product, not the variant itself.
	cats := &mockCategories{related: map[int64][]int64{3: {100}}}
	m := newTestMatcher(&mockRepo{}, nil, nil, nil, cats)

	got, err := m.MatchLineItem(context.Background(), item,
		&Discount{AllPurchasables: true, CategoryIDs: []int64{100}})

	require.NoError(t, err)
	assert.True(t, got)
}

func TestMatchLineItem_VetoHooks(t *testing.T) {
	m := newTestMatcher(&mockRepo{}, nil, nil, nil, nil)
	d := &Discount{AllPurchasables: true, AllCategories: true}
	item := promotableItem(5)

	ok, err := m.MatchLineItem(context.Background(), item, d)
	require.NoError(t, err)
	require.True(t, ok)

	var sawItem LineItem
	m.RegisterMatchFunc(func(li LineItem, _ *Discount) bool {
		sawItem = li
		return true
	})
	m.RegisterMatchFunc(func(_ LineItem, _ *Discount) bool { return false })

	ok, err = m.MatchLineItem(context.Background(), item, d)
	require.NoError(t, err)
	assert.False(t, ok, "a single vetoing hook defeats the match")
	assert.Equal(t, item.PurchasableID, sawItem.PurchasableID)
}
