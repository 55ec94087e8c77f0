package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/perishables/internal/clock"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/smallbiznis/perishables/internal/inventory/inventorytest"
	inventoryrepo "github.com/smallbiznis/perishables/internal/inventory/repository"
	"github.com/smallbiznis/perishables/internal/locks"
	markdowndomain "github.com/smallbiznis/perishables/internal/markdown/domain"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"github.com/smallbiznis/perishables/internal/pricing/mocks"
	"github.com/smallbiznis/perishables/internal/pricing/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var today = time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC)

type failingRepo struct {
	pricingdomain.Repository
}

func (failingRepo) Insert(ctx context.Context, db *gorm.DB, record *pricingdomain.MarkdownRecord) error {
	return errors.New("disk full")
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	publisher *mocks.MockEventPublisher
}

func setup(t *testing.T, repo pricingdomain.Repository) fixture {
	t.Helper()
	db := inventorytest.OpenDB(t, &pricingdomain.MarkdownRecord{})
	inventorytest.InsertStore(t, db, "1234")
	inventorytest.InsertStore(t, db, "5678")
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-001", "1234", "10.00", 24, today.AddDate(0, 0, 1)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-002", "1234", "4.79", 18, today.AddDate(0, 0, 2)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-900", "5678", "3.99", 6, today.AddDate(0, 0, 2)))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	if repo == nil {
		repo = repository.Provide()
	}

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(today),
		GenID:     node,
		Repo:      repo,
		ItemRepo:  inventoryrepo.Provide(),
		Mutex:     locks.NewKeyedMutex(),
		Publisher: publisher,
	}).(*Service)
	return fixture{svc: svc, db: db, publisher: publisher}
}

func storedPrice(t *testing.T, db *gorm.DB, id string) decimal.Decimal {
	t.Helper()
	item, err := inventoryrepo.Provide().FindByID(context.Background(), db, id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.CurrentPrice
}

func TestApplyDiscountCompounds(t *testing.T) {
	f := setup(t, nil)
	f.publisher.EXPECT().PublishPriceChanged(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	ctx := context.Background()

	first, err := f.svc.ApplyDiscount(ctx, pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: 20, AppliedBy: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "10.00", first.OldPrice.StringFixed(2))
	assert.Equal(t, "8.00", first.NewPrice.StringFixed(2))

	second, err := f.svc.ApplyDiscount(ctx, pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: 10, AppliedBy: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "8.00", second.OldPrice.StringFixed(2))
	assert.Equal(t, "7.20", second.NewPrice.StringFixed(2))
	assert.Equal(t, "7.20", storedPrice(t, f.db, "mlk-001").StringFixed(2))

	history, err := f.svc.History(ctx, "1234", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.RecordID, history[0].ID)
	assert.Equal(t, "u-1", history[0].AppliedBy)
	assert.Equal(t, "mlk-001", history[1].ItemID)
}

func TestApplyDiscountPublishesChange(t *testing.T) {
	f := setup(t, nil)
	var got pricingdomain.PriceChange
	f.publisher.EXPECT().
		PublishPriceChanged(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, change pricingdomain.PriceChange) error {
			got = change
			return nil
		})

	_, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-002", DiscountPercent: 20})
	require.NoError(t, err)

	assert.Equal(t, "1234", got.StoreID)
	assert.Equal(t, "mlk-002", got.ItemID)
	assert.Equal(t, "4.79", got.OldPrice.StringFixed(2))
	assert.Equal(t, "3.83", got.NewPrice.StringFixed(2))
	assert.Equal(t, 20.0, got.DiscountPercent)
	assert.Equal(t, "system", got.AppliedBy)
	assert.True(t, today.Equal(got.Timestamp))
}

func TestApplyDiscountConcurrentSameItem(t *testing.T) {
	f := setup(t, nil)
	f.publisher.EXPECT().PublishPriceChanged(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, pct := range []float64{20, 10} {
		wg.Add(1)
		go func(pct float64) {
			defer wg.Done()
			_, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: pct})
			errs <- err
		}(pct)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, "7.20", storedPrice(t, f.db, "mlk-001").StringFixed(2))
}

func TestApplyDiscountRejectsOutOfRange(t *testing.T) {
	f := setup(t, nil)
	for _, pct := range []float64{-1, 50.5, 80} {
		_, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: pct})
		assert.ErrorIs(t, err, pricingdomain.ErrInvalidDiscount)
	}
	assert.Equal(t, "10.00", storedPrice(t, f.db, "mlk-001").StringFixed(2))
}

func TestApplyDiscountBoundaries(t *testing.T) {
	f := setup(t, nil)
	f.publisher.EXPECT().PublishPriceChanged(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	zero, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: 0})
	require.NoError(t, err)
	assert.True(t, zero.OldPrice.Equal(zero.NewPrice))

	half, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: 50})
	require.NoError(t, err)
	assert.Equal(t, "5.00", half.NewPrice.StringFixed(2))
}

func TestApplyDiscountNotFound(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "missing", DiscountPercent: 10})
	assert.ErrorIs(t, err, inventorydomain.ErrNotFound)

	_, err = f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: " ", DiscountPercent: 10})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidItem)
}

func TestApplyDiscountPersistenceFailureLeavesPrice(t *testing.T) {
	f := setup(t, failingRepo{Repository: repository.Provide()})

	_, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: 20})
	require.ErrorIs(t, err, pricingdomain.ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, "10.00", storedPrice(t, f.db, "mlk-001").StringFixed(2))
}

func TestApplyDiscountPublishFailureIsNotReturned(t *testing.T) {
	f := setup(t, nil)
	f.publisher.EXPECT().PublishPriceChanged(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	change, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-001", DiscountPercent: 30})
	require.NoError(t, err)
	assert.Equal(t, "7.00", change.NewPrice.StringFixed(2))
	assert.Equal(t, "7.00", storedPrice(t, f.db, "mlk-001").StringFixed(2))
}

func TestApplySelection(t *testing.T) {
	f := setup(t, nil)
	f.publisher.EXPECT().PublishPriceChanged(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	changes, err := f.svc.ApplySelection(context.Background(), pricingdomain.SelectionApplyRequest{
		StoreID:         "1234",
		ItemIDs:         []string{"mlk-001", "mlk-002", "mlk-001"},
		DiscountPercent: 25,
		AppliedBy:       "mgr-7",
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "7.50", changes[0].NewPrice.StringFixed(2))
	assert.Equal(t, "3.59", changes[1].NewPrice.StringFixed(2))
}

func TestApplySelectionRejectsForeignItem(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.ApplySelection(context.Background(), pricingdomain.SelectionApplyRequest{
		StoreID:         "1234",
		ItemIDs:         []string{"mlk-001", "mlk-900"},
		DiscountPercent: 10,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrItemNotInStore)
	assert.Equal(t, "10.00", storedPrice(t, f.db, "mlk-001").StringFixed(2))

	_, err = f.svc.ApplySelection(context.Background(), pricingdomain.SelectionApplyRequest{StoreID: "1234", DiscountPercent: 10})
	assert.ErrorIs(t, err, markdowndomain.ErrEmptySelection)
}

func TestHistoryLimit(t *testing.T) {
	f := setup(t, nil)
	f.publisher.EXPECT().PublishPriceChanged(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	for i := 0; i < 3; i++ {
		_, err := f.svc.ApplyDiscount(context.Background(), pricingdomain.ApplyRequest{ItemID: "mlk-002", DiscountPercent: 5})
		require.NoError(t, err)
	}

	history, err := f.svc.History(context.Background(), "1234", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	other, err := f.svc.History(context.Background(), "5678", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}
