package services_test

import (
	"context"
	"testing"
	"time"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories/memory"
	"school_resources_backend/internal/services"

	"github.com/stretchr/testify/require"
)

var (
	teacher     = models.Principal{ID: 1, Username: "t.adams", Role: models.RoleTeacher}
	teacher2    = models.Principal{ID: 2, Username: "t.baker", Role: models.RoleTeacher}
	storekeeper = models.Principal{ID: 3, Username: "s.clark", Role: models.RoleStorekeeper}
	librarian   = models.Principal{ID: 4, Username: "l.davis", Role: models.RoleLibrarian}
	labTech     = models.Principal{ID: 5, Username: "lt.evans", Role: models.RoleLabTechnician}
	admin       = models.Principal{ID: 9, Username: "root", Role: models.RoleAdmin}
)

var fixedNow = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	now       *time.Time
	store     *memory.Store
	inventory services.InventoryService
	requests  services.RequestService
	library   services.LibraryService
	labs      services.LabService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	now := fixedNow
	clock := func() time.Time { return now }
	store := memory.NewStore(memory.WithClock(clock))
	gate := services.ClaimsGate{}
	metrics := services.NewMetrics(nil)
	return fixture{
		now:       &now,
		store:     store,
		inventory: services.NewInventoryService(store, gate, metrics),
		requests:  services.NewRequestService(store, gate, metrics),
		library:   services.NewLibraryService(store, gate, metrics, clock),
		labs:      services.NewLabService(store, gate, metrics),
	}
}

func intPtr(v int) *int { return &v }

func (f fixture) item(t *testing.T, name string, qty int) *models.InventoryItem {
	t.Helper()
	item, err := f.inventory.CreateItem(context.Background(), storekeeper, services.CreateInventoryItemRequest{
		Name:     name,
		Category: models.CategoryStationery,
		Quantity: intPtr(qty),
	})
	require.NoError(t, err)
	return item
}

func (f fixture) request(t *testing.T, owner models.Principal, name string, qty int) *models.ResourceRequest {
	t.Helper()
	req, err := f.requests.CreateRequest(context.Background(), owner, services.CreateResourceRequestRequest{
		ResourceName: name,
		ResourceType: "supplies",
		Quantity:     qty,
	})
	require.NoError(t, err)
	return req
}

func TestRequestFulfilledThenRejected_InvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, teacher, "Projector bulbs", 2)
	require.Equal(t, models.StatusPending, req.Status)

	fulfilled, err := f.requests.Transition(ctx, storekeeper, req.ID, models.ActionFulfill)
	require.NoError(t, err)
	require.Equal(t, models.StatusFulfilled, fulfilled.Status)

	_, err = f.requests.Transition(ctx, storekeeper, req.ID, models.ActionReject)
	require.ErrorIs(t, err, services.ErrInvalidState)

	got, err := f.requests.GetRequestByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFulfilled, got.Status)
}

func TestRequestTransition_RoleChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, teacher, "Markers", 1)

	_, err := f.requests.Transition(ctx, teacher, req.ID, models.ActionFulfill)
	require.ErrorIs(t, err, services.ErrForbidden)
	_, err = f.requests.Transition(ctx, librarian, req.ID, models.ActionReject)
	require.ErrorIs(t, err, services.ErrForbidden)

	_, err = f.requests.Transition(ctx, storekeeper, req.ID, models.ActionApprove)
	require.ErrorIs(t, err, services.ErrInvalidState, "approve is not an action on resource requests")

	got, err := f.requests.GetRequestByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)

	_, err = f.requests.CreateRequest(ctx, storekeeper, services.CreateResourceRequestRequest{
		ResourceName: "Chalk", ResourceType: "supplies", Quantity: 1,
	})
	require.ErrorIs(t, err, services.ErrForbidden)
}

func TestRequestFulfil_DrainsLinkedStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "A4 Paper", 10)
	req := f.request(t, teacher, "a4 paper", 4)
	require.NotNil(t, req.InventoryItemID, "request links to the item by case-insensitive name")
	require.Equal(t, item.ID, *req.InventoryItemID)

	for i := 0; i < 2; i++ {
		got, err := f.requests.Transition(ctx, storekeeper, req.ID, models.ActionFulfill)
		require.NoError(t, err)
		require.Equal(t, models.StatusFulfilled, got.Status)
	}

	after, err := f.inventory.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 6, after.Quantity)

	movements, total, err := f.inventory.GetMovements(ctx, item.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, models.MovementTypeFulfillment, movements[0].MovementType)
	require.Equal(t, -4, movements[0].QuantityChanged)
	require.Equal(t, 6, movements[0].QuantityAfter)
	require.NotNil(t, movements[0].RequestID)
	require.Equal(t, req.ID, *movements[0].RequestID)
}

func TestRequestFulfil_InsufficientStockStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Glue sticks", 3)
	req, err := f.requests.CreateRequest(ctx, teacher, services.CreateResourceRequestRequest{
		ResourceName:    "Glue",
		ResourceType:    "supplies",
		Quantity:        5,
		InventoryItemID: &item.ID,
	})
	require.NoError(t, err)

	_, err = f.requests.Transition(ctx, storekeeper, req.ID, models.ActionFulfill)
	require.ErrorIs(t, err, services.ErrConflict)
	require.ErrorIs(t, err, services.ErrNegativeStock)

	got, err := f.requests.GetRequestByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)

	unchanged, err := f.inventory.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 3, unchanged.Quantity)

	_, err = f.inventory.Restock(ctx, storekeeper, item.ID, services.RestockRequest{Quantity: 2})
	require.NoError(t, err)
	got, err = f.requests.Transition(ctx, storekeeper, req.ID, models.ActionFulfill)
	require.NoError(t, err)
	require.Equal(t, models.StatusFulfilled, got.Status)
}

func TestRequestCreate_LinkErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := int64(404)
	_, err := f.requests.CreateRequest(ctx, teacher, services.CreateResourceRequestRequest{
		ResourceName: "Ghost", ResourceType: "supplies", Quantity: 1, InventoryItemID: &missing,
	})
	require.ErrorIs(t, err, services.ErrNotFound)

	item := f.item(t, "Old stapler", 1)
	_, err = f.inventory.Retire(ctx, storekeeper, item.ID)
	require.NoError(t, err)
	_, err = f.requests.CreateRequest(ctx, teacher, services.CreateResourceRequestRequest{
		ResourceName: "Stapler", ResourceType: "supplies", Quantity: 1, InventoryItemID: &item.ID,
	})
	require.ErrorIs(t, err, services.ErrInvalidState)

	unlinked := f.request(t, teacher, "old stapler", 1)
	require.Nil(t, unlinked.InventoryItemID, "retired items are not matched by name")

	_, err = f.requests.CreateRequest(ctx, teacher, services.CreateResourceRequestRequest{
		ResourceName: "Stapler", ResourceType: "supplies", Quantity: 0,
	})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestCancel_OwnerAdminAndOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(t, teacher, "Scissors", 1)
	_, err := f.requests.Cancel(ctx, teacher2, req.ID)
	require.ErrorIs(t, err, services.ErrForbidden)
	_, err = f.requests.Cancel(ctx, storekeeper, req.ID)
	require.ErrorIs(t, err, services.ErrForbidden)

	cancelled, err := f.requests.Cancel(ctx, teacher, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, cancelled.Status)

	again, err := f.requests.Transition(ctx, teacher, req.ID, models.ActionCancel)
	require.NoError(t, err, "cancelling twice is a no-op")
	require.Equal(t, models.StatusCancelled, again.Status)

	_, err = f.requests.Transition(ctx, storekeeper, req.ID, models.ActionFulfill)
	require.ErrorIs(t, err, services.ErrInvalidState)

	other := f.request(t, teacher2, "Tape", 1)
	byAdmin, err := f.requests.Cancel(ctx, admin, other.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, byAdmin.Status)
}

func TestTransition_UnknownEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.requests.Transition(ctx, storekeeper, 999, models.ActionFulfill)
	require.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.labs.Decide(ctx, labTech, 999, models.ActionApprove)
	require.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.library.Return(ctx, librarian, 999)
	require.ErrorIs(t, err, services.ErrNotFound)
}

// Kind and role are checked before the entity is looked up.
func TestTransition_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.requests.Transition(ctx, teacher, 999, models.ActionFulfill)
	require.ErrorIs(t, err, services.ErrForbidden)
	require.NotErrorIs(t, err, services.ErrNotFound)

	_, err = f.requests.Transition(ctx, storekeeper, 999, models.ActionApprove)
	require.ErrorIs(t, err, services.ErrInvalidState)

	_, err = f.labs.Decide(ctx, teacher, 999, models.ActionApprove)
	require.ErrorIs(t, err, services.ErrForbidden)
}

func TestClaimsGate_RejectsUnknownRole(t *testing.T) {
	_, err := services.ClaimsGate{}.RoleOf(context.Background(), models.Principal{ID: 1, Role: "janitor"})
	require.ErrorIs(t, err, services.ErrForbidden)

	role, err := services.ClaimsGate{}.RoleOf(context.Background(), labTech)
	require.NoError(t, err)
	require.Equal(t, models.RoleLabTechnician, role)
}
