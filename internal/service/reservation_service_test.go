package service

import (
	"context"
	"io"
	"testing"
	"time"

	"korty/internal/apperr"
	"korty/internal/config"
	"korty/internal/database"
	"korty/internal/directory"
	"korty/internal/models"
	"korty/internal/provider"
	"korty/internal/realtime"
	"korty/internal/secrets"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateBookingNoOverlap(ctx context.Context, b *models.Booking, ev []*models.OutboxEvent) error {
	return m.Called(ctx, b, ev).Error(0)
}
func (m *mockStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockStore) CancelBookingNoIntent(ctx context.Context, bookingID string, fromVersion int64, ev []*models.OutboxEvent) error {
	return m.Called(ctx, bookingID, fromVersion, ev).Error(0)
}
func (m *mockStore) GetClubBookingsInRange(ctx context.Context, clubID string, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, clubID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) GetStaleUnpaidBookings(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) InsertPaymentAccount(ctx context.Context, account *models.PaymentAccount) error {
	return m.Called(ctx, account).Error(0)
}
func (m *mockStore) FindVerifiedAccount(ctx context.Context, scope, ownerID, providerName string) (*models.PaymentAccount, error) {
	args := m.Called(ctx, scope, ownerID, providerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentAccount), args.Error(1)
}
func (m *mockStore) GetPaymentAccount(ctx context.Context, id string) (*models.PaymentAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentAccount), args.Error(1)
}
func (m *mockStore) InsertPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return m.Called(ctx, intent).Error(0)
}
func (m *mockStore) SetIntentCheckoutURL(ctx context.Context, id, checkoutURL string) error {
	return m.Called(ctx, id, checkoutURL).Error(0)
}
func (m *mockStore) GetIntentByOrderReference(ctx context.Context, orderReference string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, orderReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}
func (m *mockStore) GetIntentByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}
func (m *mockStore) GetIntentByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}
func (m *mockStore) SettleIntent(ctx context.Context, s models.Settlement) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockStore) MarkSignatureInvalid(ctx context.Context, intentID string) error {
	return m.Called(ctx, intentID).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateInvoice(ctx context.Context, creds provider.Credentials, inv provider.Invoice) (*provider.Checkout, error) {
	args := m.Called(ctx, creds, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Checkout), args.Error(1)
}

type mockNudger struct {
	mock.Mock
}

func (m *mockNudger) Nudge() { m.Called() }

const (
	testBoxKey         = "6368616e676520746869732070617373776f726420746f206120736563726574"
	testMerchantLogin  = "padel_central_merch"
	testMerchantSecret = "flk3409refn54t54t*FNJRET"
)

func testBox(t *testing.T) *secrets.Box {
	t.Helper()
	box, err := secrets.NewBox(testBoxKey)
	require.NoError(t, err)
	return box
}

func testDir(t *testing.T) *directory.Registry {
	t.Helper()
	dir, err := directory.New(&config.DirectoryConfig{
		Organizations: []models.Organization{
			{ID: "org-1", Name: "Kyiv Padel Group", Admins: []string{"olena"}},
		},
		Clubs: []models.Club{
			{ID: "club-1", OrganizationID: "org-1", Name: "Padel Central", Zone: "Europe/Kyiv", Currency: "UAH"},
		},
		Courts: []models.Court{
			{ID: "court-1", ClubID: "club-1", Name: "Court 1", PricePerHour: 60000},
		},
		RootAdmins: []string{"root"},
	})
	require.NoError(t, err)
	return dir
}

func sealedAccount(t *testing.T, box *secrets.Box, id, scope, ownerID string) *models.PaymentAccount {
	t.Helper()
	merchant, err := box.SealString(testMerchantLogin)
	require.NoError(t, err)
	secret, err := box.SealString(testMerchantSecret)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &models.PaymentAccount{
		ID:             id,
		Provider:       DefaultProvider,
		Scope:          scope,
		OwnerID:        ownerID,
		Status:         models.AccountStatusVerified,
		MerchantSealed: merchant,
		SecretSealed:   secret,
		VerifiedAt:     &now,
		CreatedAt:      now,
	}
}

func kindCounts(ev []*models.OutboxEvent) map[string]int {
	counts := make(map[string]int)
	for _, e := range ev {
		counts[e.Kind]++
	}
	return counts
}

func roomSet(ev []*models.OutboxEvent) map[string]bool {
	rooms := make(map[string]bool)
	for _, e := range ev {
		rooms[e.Room] = true
	}
	return rooms
}

func TestBookingServiceReserve(t *testing.T) {
	logger := zerolog.New(io.Discard)
	box := testBox(t)
	dir := testDir(t)
	ctx := context.Background()

	newService := func(store *mockStore, gateway *mockGateway, nudger *mockNudger) *BookingService {
		return NewBookingService(store, dir, box, gateway, nudger, "https://korty.example.com", &logger)
	}

	req := ReserveRequest{
		CourtID: "court-1",
		UserID:  "dasha",
		StartAt: "2026-06-01T10:00:00Z",
		EndAt:   "2026-06-01T11:30:00Z",
	}

	t.Run("CreatesBookingAndInvoice", func(t *testing.T) {
		store := new(mockStore)
		gateway := new(mockGateway)
		nudger := new(mockNudger)
		svc := newService(store, gateway, nudger)
		account := sealedAccount(t, box, "acc-1", models.AccountScopeClub, "club-1")

		var staged []*models.OutboxEvent
		var invoice provider.Invoice
		var creds provider.Credentials

		store.On("FindVerifiedAccount", ctx, models.AccountScopeClub, "club-1", "wayforpay").Return(account, nil).Once()
		store.On("CreateBookingNoOverlap", ctx, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { staged = args.Get(2).([]*models.OutboxEvent) }).
			Return(nil).Once()
		store.On("InsertPaymentIntent", ctx, mock.Anything).Return(nil).Once()
		gateway.On("CreateInvoice", ctx, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				creds = args.Get(1).(provider.Credentials)
				invoice = args.Get(2).(provider.Invoice)
			}).
			Return(&provider.Checkout{URL: "https://secure.wayforpay.com/page?vkh=abc"}, nil).Once()
		store.On("SetIntentCheckoutURL", ctx, mock.Anything, "https://secure.wayforpay.com/page?vkh=abc").Return(nil).Once()
		nudger.On("Nudge").Return().Once()

		result, err := svc.Reserve(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, "court-1", result.Booking.CourtID)
		assert.Equal(t, "club-1", result.Booking.ClubID)
		assert.Equal(t, "dasha", result.Booking.UserID)
		assert.Equal(t, models.BookingStatusConfirmed, result.Booking.BookingStatus)
		assert.Equal(t, models.PaymentStatusUnpaid, result.Booking.PaymentStatus)

		// 90 minutes at 60000 minor units per hour.
		assert.Equal(t, int64(90000), result.Intent.Amount)
		assert.Equal(t, "UAH", result.Intent.Currency)
		assert.Equal(t, models.IntentStatusPending, result.Intent.Status)
		assert.Contains(t, result.Intent.OrderReference, "korty-")
		assert.Equal(t, "https://secure.wayforpay.com/page?vkh=abc", result.CheckoutURL)

		counts := kindCounts(staged)
		assert.Equal(t, 3, counts["booking:created"])
		assert.Equal(t, 3, counts["bookingCreated"])
		rooms := roomSet(staged)
		assert.True(t, rooms["club:club-1"])
		assert.True(t, rooms["root_admin"])
		assert.True(t, rooms["user:dasha"])

		// Credentials are unsealed only for the gateway call.
		assert.Equal(t, testMerchantLogin, creds.MerchantLogin)
		assert.Equal(t, testMerchantSecret, creds.MerchantSecret)
		assert.Equal(t, int64(90000), invoice.Amount)
		assert.Equal(t, result.Intent.OrderReference, invoice.OrderReference)
		// 10:00Z on a June day is 13:00 on the club's Kyiv wall clock.
		assert.Equal(t, "Court 1 2026-06-01 13:00", invoice.ProductName)
		assert.Equal(t, "https://korty.example.com/v1/payments/wayforpay/callback", invoice.ServiceURL)

		store.AssertExpectations(t)
		gateway.AssertExpectations(t)
		nudger.AssertExpectations(t)
	})

	t.Run("RejectsMalformedInstant", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockGateway), new(mockNudger))

		bad := req
		bad.StartAt = "2026-06-01 10:00"
		_, err := svc.Reserve(ctx, bad)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
		store.AssertNotCalled(t, "CreateBookingNoOverlap", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RejectsBackwardWindow", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockGateway), new(mockNudger))

		bad := req
		bad.EndAt = bad.StartAt
		_, err := svc.Reserve(ctx, bad)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})

	t.Run("UnknownCourtNotFound", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockGateway), new(mockNudger))

		bad := req
		bad.CourtID = "court-99"
		_, err := svc.Reserve(ctx, bad)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})

	t.Run("NoAccountFailsBeforeAnyWrite", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockGateway), new(mockNudger))

		store.On("FindVerifiedAccount", ctx, models.AccountScopeClub, "club-1", "wayforpay").Return(nil, nil).Once()
		store.On("FindVerifiedAccount", ctx, models.AccountScopeOrganization, "org-1", "wayforpay").Return(nil, nil).Once()

		_, err := svc.Reserve(ctx, req)
		assert.True(t, apperr.Is(err, apperr.CodeConflict))
		store.AssertNotCalled(t, "CreateBookingNoOverlap", mock.Anything, mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})

	t.Run("SlotConflictSurfacesCollidingWindow", func(t *testing.T) {
		store := new(mockStore)
		nudger := new(mockNudger)
		svc := newService(store, new(mockGateway), nudger)
		account := sealedAccount(t, box, "acc-1", models.AccountScopeClub, "club-1")

		occupiedStart := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
		occupiedEnd := occupiedStart.Add(time.Hour)
		store.On("FindVerifiedAccount", ctx, models.AccountScopeClub, "club-1", "wayforpay").Return(account, nil).Once()
		store.On("CreateBookingNoOverlap", ctx, mock.Anything, mock.Anything).
			Return(&database.SlotConflictError{CourtID: "court-1", Start: occupiedStart, End: occupiedEnd}).Once()

		_, err := svc.Reserve(ctx, req)
		require.Error(t, err)
		ae := apperr.As(err)
		assert.Equal(t, apperr.CodeConflict, ae.Code)
		assert.Equal(t, "court-1", ae.Meta["court_id"])
		assert.Equal(t, "2026-06-01T10:00:00Z", ae.Meta["conflict_start"])
		assert.Equal(t, "2026-06-01T11:00:00Z", ae.Meta["conflict_end"])
		nudger.AssertNotCalled(t, "Nudge")
	})

	t.Run("GatewayFailureLeavesBookingForSweeper", func(t *testing.T) {
		store := new(mockStore)
		gateway := new(mockGateway)
		nudger := new(mockNudger)
		svc := newService(store, gateway, nudger)
		account := sealedAccount(t, box, "acc-1", models.AccountScopeClub, "club-1")

		store.On("FindVerifiedAccount", ctx, models.AccountScopeClub, "club-1", "wayforpay").Return(account, nil).Once()
		store.On("CreateBookingNoOverlap", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		store.On("InsertPaymentIntent", ctx, mock.Anything).Return(nil).Once()
		gateway.On("CreateInvoice", ctx, mock.Anything, mock.Anything).Return(nil, provider.ErrGatewayRejected).Once()
		nudger.On("Nudge").Return().Once()

		result, err := svc.Reserve(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, result.CheckoutURL)
		assert.Equal(t, models.IntentStatusPending, result.Intent.Status)
		store.AssertNotCalled(t, "SetIntentCheckoutURL", mock.Anything, mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})
}

func TestClubBookings(t *testing.T) {
	logger := zerolog.New(io.Discard)
	box := testBox(t)
	dir := testDir(t)
	ctx := context.Background()
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	t.Run("OrganizationAdminSeesClub", func(t *testing.T) {
		store := new(mockStore)
		svc := NewBookingService(store, dir, box, new(mockGateway), new(mockNudger), "https://korty.example.com", &logger)
		cap := realtime.ResolveCapability(dir, "olena")
		bookings := []*models.Booking{{ID: "bk-1"}, {ID: "bk-2"}}

		store.On("GetClubBookingsInRange", ctx, "club-1", from, to).Return(bookings, nil).Once()

		result, err := svc.ClubBookings(ctx, "club-1", from, to, cap)
		require.NoError(t, err)
		assert.Equal(t, bookings, result)
		store.AssertExpectations(t)
	})

	t.Run("MemberForbidden", func(t *testing.T) {
		store := new(mockStore)
		svc := NewBookingService(store, dir, box, new(mockGateway), new(mockNudger), "https://korty.example.com", &logger)
		cap := realtime.ResolveCapability(dir, "dasha")

		_, err := svc.ClubBookings(ctx, "club-1", from, to, cap)
		assert.True(t, apperr.Is(err, apperr.CodeForbidden))
		store.AssertNotCalled(t, "GetClubBookingsInRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownClubNotFound", func(t *testing.T) {
		store := new(mockStore)
		svc := NewBookingService(store, dir, box, new(mockGateway), new(mockNudger), "https://korty.example.com", &logger)
		cap := realtime.ResolveCapability(dir, "root")

		_, err := svc.ClubBookings(ctx, "club-99", from, to, cap)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})

	t.Run("BackwardRangeRejected", func(t *testing.T) {
		store := new(mockStore)
		svc := NewBookingService(store, dir, box, new(mockGateway), new(mockNudger), "https://korty.example.com", &logger)
		cap := realtime.ResolveCapability(dir, "root")

		_, err := svc.ClubBookings(ctx, "club-1", to, from, cap)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})
}

func TestSlotAmount(t *testing.T) {
	cases := []struct {
		name         string
		pricePerHour int64
		minutes      int64
		want         int64
	}{
		{"FullHour", 60000, 60, 60000},
		{"NinetyMinutes", 60000, 90, 90000},
		{"HalfHour", 60000, 30, 30000},
		{"TwoHoursOddPrice", 45000, 120, 90000},
		{"FiftyMinutes", 60000, 50, 50000},
	}

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := slotAmount(tc.pricePerHour, start, start.Add(time.Duration(tc.minutes)*time.Minute))
			assert.Equal(t, tc.want, got)
		})
	}
}
