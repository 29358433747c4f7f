package offline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/client/internal/domain/records"
	"github.com/erp/client/internal/domain/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutate_OptimisticRoundTripLeavesOneEntry(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(41))

	var seen [][]offline.ID
	te.customers.Subscribe(func(e offline.CacheEntry[records.Customer]) {
		seen = append(seen, ids(e.Items))
	})

	res, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})

	require.NoError(t, err)
	assert.Equal(t, Synced, res.Outcome)
	assert.Equal(t, offline.IntID(42), res.Item.ID)
	assert.Equal(t, []offline.ID{"42"}, ids(te.customers.Get().Items))
	assert.Equal(t, []string{"create:Sara"}, te.api.Calls())

	require.Len(t, seen, 3, "initial, optimistic, reconciled")
	assert.True(t, seen[1][0].IsTemp())
	assert.Equal(t, []offline.ID{"42"}, seen[2])
}

func TestMutate_CustomRemoteCall(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))

	res, err := te.customers.Mutate(ctx, offline.ActionCreate, records.Customer{Name: "Sara"},
		func(context.Context) (records.Customer, error) {
			return records.Customer{ID: offline.IntID(42), Name: "Sara", Phone: "0100"}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "0100", res.Item.Phone, "server computed fields win")
	assert.Empty(t, te.api.Calls())
	assert.Equal(t, 1, te.customers.Get().Len())
}

func TestMutate_ServerRejectionRollsBack(t *testing.T) {
	ctx := context.Background()
	rejected := &offline.RejectionError{StatusCode: 422, Code: "ERR_VALIDATION", Message: "phone invalid"}

	tests := []struct {
		name   string
		action offline.Action
		item   records.Customer
		setup  func(api *fakeCustomerAPI)
	}{
		{"create", offline.ActionCreate, records.Customer{Name: "Sara"}, func(api *fakeCustomerAPI) { api.createErr = rejected }},
		{"update", offline.ActionUpdate, records.Customer{ID: offline.IntID(1), Name: "Ahmed K"}, func(api *fakeCustomerAPI) { api.updateErr = rejected }},
		{"delete", offline.ActionDelete, records.Customer{ID: offline.IntID(1)}, func(api *fakeCustomerAPI) { api.deleteErr = rejected }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeCustomerAPI(10)
			tt.setup(api)
			te := newTestEngine(t, permsWith(nil), api)
			te.customers.Cache().Set([]records.Customer{
				{ID: offline.IntID(1), Name: "Ahmed"},
				{ID: offline.IntID(2), Name: "Mona"},
			})
			before := te.customers.Get()

			_, err := te.customers.Mutate(ctx, tt.action, tt.item, nil)

			assert.ErrorIs(t, err, offline.ErrServerRejection)
			assert.Equal(t, before, te.customers.Get())
			assert.Equal(t, 0, te.engine.PendingChangesCount(), "rejections are never queued")
		})
	}
}

func TestMutate_NetworkFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("queued when allowed offline", func(t *testing.T) {
		api := newFakeCustomerAPI(0)
		api.updateErr = errConnRefused
		te := newTestEngine(t, permsWith(nil), api)
		te.customers.Cache().Set([]records.Customer{{ID: offline.IntID(1), Name: "Ahmed"}})

		res, err := te.customers.Update(ctx, records.Customer{ID: offline.IntID(1), Name: "Ahmed K"})

		require.NoError(t, err)
		assert.Equal(t, Queued, res.Outcome)
		item, ok := te.customers.GetByID(offline.IntID(1))
		require.True(t, ok)
		assert.Equal(t, "Ahmed K", item.Name, "optimistic value is kept")
		assert.Equal(t, 1, te.engine.PendingChangesCount())
	})

	t.Run("rolled back when not allowed offline", func(t *testing.T) {
		api := newFakeCustomerAPI(0)
		api.deleteErr = errConnRefused
		te := newTestEngine(t, permsWith(nil), api)
		te.customers.Cache().Set([]records.Customer{{ID: offline.IntID(1), Name: "Ahmed"}})
		before := te.customers.Get()

		_, err := te.customers.Remove(ctx, offline.IntID(1))

		assert.ErrorIs(t, err, offline.ErrNetworkFailure)
		assert.Equal(t, before, te.customers.Get())
		assert.Equal(t, 0, te.engine.PendingChangesCount())
	})
}

func TestMutate_PolicyGating(t *testing.T) {
	ctx := context.Background()
	disabled := permsWith(func(p *offline.OfflinePermissions) { p.Enabled = false })

	for _, action := range []offline.Action{offline.ActionCreate, offline.ActionUpdate, offline.ActionDelete} {
		t.Run(action.String(), func(t *testing.T) {
			te := newTestEngine(t, disabled, newFakeCustomerAPI(0))
			te.customers.Cache().Set([]records.Customer{{ID: offline.IntID(1), Name: "Ahmed"}})
			te.engine.SetOnline(ctx, false)
			before := te.customers.Get()

			_, err := te.customers.Mutate(ctx, action, records.Customer{ID: offline.IntID(1), Name: "X"}, nil)

			assert.ErrorIs(t, err, offline.ErrPolicyDenied)
			assert.Equal(t, before, te.customers.Get())
			assert.Empty(t, te.api.Calls())
			assert.Equal(t, 0, te.engine.PendingChangesCount())
			assert.True(t, te.engine.State().InputBlocked)
		})
	}
}

func TestMutate_QuotaRejectsBeforeApplying(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(func(p *offline.OfflinePermissions) { p.MaxPendingChanges = 2 }), newFakeCustomerAPI(0))
	te.engine.SetOnline(ctx, false)

	_, err := te.customers.Add(ctx, records.Customer{Name: "A"})
	require.NoError(t, err)
	_, err = te.customers.Add(ctx, records.Customer{Name: "B"})
	require.NoError(t, err)
	before := te.customers.Get()

	_, err = te.customers.Add(ctx, records.Customer{Name: "C"})

	assert.ErrorIs(t, err, offline.ErrQuotaExceeded)
	assert.Equal(t, 2, te.engine.PendingChangesCount())
	assert.Equal(t, before, te.customers.Get())
}

func TestMutate_QuotaAfterNetworkFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	api := newFakeCustomerAPI(0)
	api.createErr = errConnRefused
	te := newTestEngine(t, permsWith(func(p *offline.OfflinePermissions) { p.MaxPendingChanges = 1 }), api)

	_, err := te.customers.Add(ctx, records.Customer{Name: "A"})
	require.NoError(t, err)
	before := te.customers.Get()

	_, err = te.customers.Add(ctx, records.Customer{Name: "B"})

	assert.ErrorIs(t, err, offline.ErrQuotaExceeded)
	assert.Equal(t, before, te.customers.Get())
}

func TestMutate_TempIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))
	te.engine.SetOnline(ctx, false)

	first, err := te.customers.Add(ctx, records.Customer{Name: "A"})
	require.NoError(t, err)
	second, err := te.customers.Add(ctx, records.Customer{Name: "B"})
	require.NoError(t, err)

	assert.True(t, first.Item.ID.IsTemp())
	assert.NotEqual(t, first.Item.ID, second.Item.ID)
	assert.Equal(t, []offline.ID{second.Item.ID, first.Item.ID}, ids(te.customers.Get().Items), "newest first")
}

func TestScenario_OfflineAddThenAutoSync(t *testing.T) {
	ctx := context.Background()
	api := newFakeCustomerAPI(1, records.Customer{ID: offline.IntID(1), Name: "Ahmed"})
	te := newTestEngine(t, permsWith(nil), api)

	entry := te.customers.Get()
	assert.Empty(t, entry.Items)
	assert.True(t, entry.IsStale)

	entry, err := te.customers.Fetch(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []offline.ID{"1"}, ids(entry.Items))
	assert.False(t, entry.IsStale)

	te.engine.SetOnline(ctx, false)
	res, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)
	assert.Equal(t, Queued, res.Outcome)
	tempID := res.Item.ID
	assert.True(t, tempID.IsTemp())

	entry = te.customers.Get()
	require.Len(t, entry.Items, 2)
	assert.Equal(t, tempID, entry.Items[0].ID)
	assert.Equal(t, 1, te.engine.State().PendingChangesCount)
	assert.Equal(t, []string{"list"}, api.Calls(), "no remote call while offline")

	assert.True(t, te.engine.SetOnline(ctx, true))
	te.engine.Monitor().Wait()

	entry = te.customers.Get()
	require.Len(t, entry.Items, 2)
	assert.Equal(t, offline.IntID(2), entry.Items[0].ID)
	assert.Equal(t, "Sara", entry.Items[0].Name)
	assert.Equal(t, 0, te.engine.State().PendingChangesCount)
	assert.False(t, te.engine.State().IsSyncing)

	byTemp, ok := te.customers.GetByID(tempID)
	require.True(t, ok, "temporary id resolves after sync")
	assert.Equal(t, offline.IntID(2), byTemp.ID)
}

func TestMutate_DeleteCancelsPendingCreate(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))
	te.engine.SetOnline(ctx, false)

	created, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)
	require.Equal(t, 1, te.engine.PendingChangesCount())

	res, err := te.customers.Remove(ctx, created.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, Coalesced, res.Outcome)
	assert.Equal(t, 0, te.engine.PendingChangesCount())
	assert.Empty(t, te.customers.Get().Items)

	te.engine.SetOnline(ctx, true)
	te.engine.Monitor().Wait()
	assert.Empty(t, te.api.Calls(), "the create never reaches the server")
}

func TestMutate_UpdateFoldsIntoPendingCreate(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))
	te.engine.SetOnline(ctx, false)

	created, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)

	edited := created.Item
	edited.Name = "Sara K"
	res, err := te.customers.Update(ctx, edited)
	require.NoError(t, err)
	assert.Equal(t, Coalesced, res.Outcome)
	assert.Equal(t, 1, te.engine.PendingChangesCount())

	var queued records.Customer
	require.NoError(t, json.Unmarshal(te.engine.Pending()[0].Payload, &queued))
	assert.Equal(t, "Sara K", queued.Name)

	te.engine.SetOnline(ctx, true)
	te.engine.Monitor().Wait()
	assert.Equal(t, []string{"create:Sara K"}, te.api.Calls())
}

func TestFlush_SendsIdempotencyKeyAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	api := newFakeCustomerAPI(0, records.Customer{ID: offline.IntID(5), Name: "Old"})
	te := newTestEngine(t, permsWith(func(p *offline.OfflinePermissions) {
		p.AutoSync = false
		p.CanDelete = true
	}), api)
	te.customers.Cache().Set(api.items)
	te.engine.SetOnline(ctx, false)

	_, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)
	_, err = te.customers.Update(ctx, records.Customer{ID: offline.IntID(5), Name: "New"})
	require.NoError(t, err)
	_, err = te.customers.Remove(ctx, offline.IntID(5))
	require.NoError(t, err)
	pending := te.engine.Pending()
	require.Len(t, pending, 3)

	te.engine.SetOnline(ctx, true)
	te.engine.Monitor().Wait()
	assert.Equal(t, 3, te.engine.PendingChangesCount(), "auto sync is off")

	report, err := te.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Replayed)
	assert.Equal(t, []string{"create:Sara", "update:5", "delete:5"}, api.Calls())
	assert.Equal(t, []string{pending[0].ID.String(), pending[1].ID.String(), pending[2].ID.String()}, api.keys)
	assert.Equal(t, []offline.ID{"1"}, ids(te.customers.Get().Items))
}

func TestFlush_OfflineReturnsNetworkFailure(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))
	te.engine.SetOnline(ctx, false)
	_, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)

	report, err := te.engine.Flush(ctx)
	assert.ErrorIs(t, err, offline.ErrNetworkFailure)
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Remaining)
}

func TestDiscard_RejectedCreateDropsOptimisticRecord(t *testing.T) {
	ctx := context.Background()
	api := newFakeCustomerAPI(0)
	te := newTestEngine(t, permsWith(func(p *offline.OfflinePermissions) { p.AutoSync = false }), api)
	te.engine.SetOnline(ctx, false)

	created, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)

	te.engine.SetOnline(ctx, true)
	api.setCreateErr(&offline.RejectionError{StatusCode: 409, Message: "duplicate"})
	report, err := te.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	pending := te.engine.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	_, ok := te.customers.GetByID(created.Item.ID)
	assert.True(t, ok, "optimistic record stays until discarded")

	require.NoError(t, te.engine.Discard(ctx, pending[0].ID))
	assert.Equal(t, 0, te.engine.PendingChangesCount())
	_, ok = te.customers.GetByID(created.Item.ID)
	assert.False(t, ok)

	assert.ErrorIs(t, te.engine.Discard(ctx, pending[0].ID), offline.ErrNotFound)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh cache skips the server", func(t *testing.T) {
		api := newFakeCustomerAPI(0, records.Customer{ID: offline.IntID(1)})
		te := newTestEngine(t, permsWith(nil), api)

		_, err := te.customers.Fetch(ctx, false)
		require.NoError(t, err)
		_, err = te.customers.Fetch(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"list"}, api.Calls())

		_, err = te.customers.Fetch(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"list", "list"}, api.Calls())
	})

	t.Run("offline returns cached entry", func(t *testing.T) {
		api := newFakeCustomerAPI(0)
		te := newTestEngine(t, permsWith(nil), api)
		te.engine.SetOnline(ctx, false)

		entry, err := te.customers.Fetch(ctx, true)
		require.NoError(t, err)
		assert.True(t, entry.IsStale)
		assert.Empty(t, api.Calls())
	})

	t.Run("failure returns stale entry with error", func(t *testing.T) {
		api := newFakeCustomerAPI(0)
		api.listErr = errConnRefused
		te := newTestEngine(t, permsWith(nil), api)
		te.customers.Cache().Set([]records.Customer{{ID: offline.IntID(1)}})
		te.clock.Advance(10 * time.Minute)

		entry, err := te.customers.Fetch(ctx, false)
		assert.ErrorIs(t, err, offline.ErrNetworkFailure)
		assert.Equal(t, 1, entry.Len())
		assert.True(t, entry.IsStale)
	})

	t.Run("queued changes survive a refresh", func(t *testing.T) {
		api := newFakeCustomerAPI(1,
			records.Customer{ID: offline.IntID(1), Name: "Ahmed"},
		)
		api.updateErr = errConnRefused
		api.createErr = errConnRefused
		te := newTestEngine(t, permsWith(nil), api)
		te.customers.Cache().Set(api.items)

		_, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
		require.NoError(t, err)
		_, err = te.customers.Update(ctx, records.Customer{ID: offline.IntID(1), Name: "Ahmed K"})
		require.NoError(t, err)

		entry, err := te.customers.Fetch(ctx, true)
		require.NoError(t, err)
		require.Len(t, entry.Items, 2)
		assert.Equal(t, "Sara", entry.Items[0].Name)
		assert.True(t, entry.Items[0].ID.IsTemp())
		assert.Equal(t, "Ahmed K", entry.Items[1].Name)
	})
}

func TestEngine_StateSubscription(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(func(p *offline.OfflinePermissions) { p.AutoSync = false }), newFakeCustomerAPI(0))

	var states []offline.ConnectivityState
	unsubscribe := te.engine.SubscribeState(func(s offline.ConnectivityState) { states = append(states, s) })
	defer unsubscribe()

	assert.True(t, te.engine.SetOnline(ctx, false))
	assert.False(t, te.engine.SetOnline(ctx, false), "duplicate event")
	_, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)

	require.Len(t, states, 3)
	assert.True(t, states[0].IsOnline)
	assert.False(t, states[1].IsOnline)
	assert.Equal(t, 0, states[1].PendingChangesCount)
	assert.Equal(t, 1, states[2].PendingChangesCount)
	assert.True(t, states[2].ShowIndicator)
	assert.False(t, states[2].InputBlocked)
}

func TestEngine_CanPerformOffline(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))

	assert.True(t, te.engine.CanPerformOffline(offline.ActionDelete), "online allows everything")
	te.engine.SetOnline(ctx, false)
	assert.True(t, te.engine.CanPerformOffline(offline.ActionCreate))
	assert.True(t, te.engine.CanPerformOffline(offline.ActionUpdate))
	assert.False(t, te.engine.CanPerformOffline(offline.ActionDelete))
}

func TestEngine_RegisterRejectsDuplicates(t *testing.T) {
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))

	_, err := Register[records.Customer](te.engine, records.CustomerEntity, te.api)
	assert.ErrorIs(t, err, offline.ErrInvalidInput)
	assert.Equal(t, []string{records.CustomerEntity}, te.engine.Entities())
}

func TestEngine_RestartRestoresCacheAndLedger(t *testing.T) {
	ctx := context.Background()
	snapshots := newMemSnapshotStore()
	changes := newMemLedgerStore()
	perms := permsWith(nil)

	first := NewEngine(snapshots, changes, perms, WithInitialOnline(false))
	customers, err := Register[records.Customer](first, records.CustomerEntity, newFakeCustomerAPI(0))
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	created, err := customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	api := newFakeCustomerAPI(99)
	second := NewEngine(snapshots, changes, perms)
	restored, err := Register[records.Customer](second, records.CustomerEntity, api)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	defer second.Close(ctx)

	_, ok := restored.GetByID(created.Item.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, second.PendingChangesCount())

	report, err := second.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, []offline.ID{"100"}, ids(restored.Get().Items))
}

func TestMutate_OnlineChangeSupersedesQueuedChanges(t *testing.T) {
	ctx := context.Background()
	noAutoSync := permsWith(func(p *offline.OfflinePermissions) {
		p.AutoSync = false
		p.CanDelete = true
	})

	t.Run("update", func(t *testing.T) {
		api := newFakeCustomerAPI(1, records.Customer{ID: offline.IntID(1), Name: "Ahmed"})
		te := newTestEngine(t, noAutoSync, api)
		te.customers.Cache().Set(api.items)

		te.engine.SetOnline(ctx, false)
		res, err := te.customers.Update(ctx, records.Customer{ID: offline.IntID(1), Name: "Old offline edit"})
		require.NoError(t, err)
		require.Equal(t, Queued, res.Outcome)

		te.engine.SetOnline(ctx, true)
		te.engine.Monitor().Wait()
		res, err = te.customers.Update(ctx, records.Customer{ID: offline.IntID(1), Name: "Newest online edit"})
		require.NoError(t, err)
		assert.Equal(t, Synced, res.Outcome)
		assert.Equal(t, 0, te.engine.PendingChangesCount())

		entry, err := te.customers.Fetch(ctx, true)
		require.NoError(t, err)
		require.Len(t, entry.Items, 1)
		assert.Equal(t, "Newest online edit", entry.Items[0].Name)

		report, err := te.engine.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Replayed)
		assert.Equal(t, "Newest online edit", api.items[0].Name)
		assert.Equal(t, []string{"update:1", "list"}, api.Calls())
	})

	t.Run("delete", func(t *testing.T) {
		api := newFakeCustomerAPI(1, records.Customer{ID: offline.IntID(1), Name: "Ahmed"})
		te := newTestEngine(t, noAutoSync, api)
		te.customers.Cache().Set(api.items)

		te.engine.SetOnline(ctx, false)
		_, err := te.customers.Update(ctx, records.Customer{ID: offline.IntID(1), Name: "Ahmed K"})
		require.NoError(t, err)

		te.engine.SetOnline(ctx, true)
		te.engine.Monitor().Wait()
		res, err := te.customers.Remove(ctx, offline.IntID(1))
		require.NoError(t, err)
		assert.Equal(t, Synced, res.Outcome)
		assert.Equal(t, 0, te.engine.PendingChangesCount())

		report, err := te.engine.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, FlushReport{}, report)
		assert.Equal(t, []string{"delete:1"}, api.Calls())
	})
}

func TestMutate_FirstAttemptAndReplayShareIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	api := newFakeCustomerAPI(0)
	api.createErr = errConnRefused
	te := newTestEngine(t, permsWith(nil), api)

	res, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
	require.NoError(t, err)
	require.Equal(t, Queued, res.Outcome)
	pending := te.engine.Pending()
	require.Len(t, pending, 1)

	api.setCreateErr(nil)
	report, err := te.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replayed)

	assert.Equal(t, []string{"create:Sara", "create:Sara"}, api.Calls())
	assert.Equal(t, []string{pending[0].ID.String(), pending[0].ID.String()}, api.keys)
}

func TestMutate_CreatedRecordWithoutIDRollsBack(t *testing.T) {
	ctx := context.Background()

	t.Run("online", func(t *testing.T) {
		api := newFakeCustomerAPI(0)
		api.omitID = true
		te := newTestEngine(t, permsWith(nil), api)
		before := te.customers.Get()

		_, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})

		assert.ErrorIs(t, err, offline.ErrServerRejection)
		assert.Equal(t, before, te.customers.Get())
		assert.Equal(t, 0, te.engine.PendingChangesCount())
	})

	t.Run("replay", func(t *testing.T) {
		api := newFakeCustomerAPI(0)
		api.omitID = true
		te := newTestEngine(t, permsWith(func(p *offline.OfflinePermissions) { p.AutoSync = false }), api)
		te.engine.SetOnline(ctx, false)
		created, err := te.customers.Add(ctx, records.Customer{Name: "Sara"})
		require.NoError(t, err)

		te.engine.SetOnline(ctx, true)
		report, err := te.engine.Flush(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 1, te.engine.PendingChangesCount(), "the create stays queued")
		_, ok := te.customers.GetByID(created.Item.ID)
		assert.True(t, ok)
	})
}

func TestReplay_ChangeNoLongerQueued(t *testing.T) {
	te := newTestEngine(t, permsWith(nil), newFakeCustomerAPI(0))
	gone := offline.NewPendingChange(records.CustomerEntity, offline.ActionUpdate, offline.IntID(1), nil, time.Now())

	err := te.customers.replay(context.Background(), *gone)

	assert.ErrorIs(t, err, ErrNotQueued)
	assert.Empty(t, te.api.Calls())
}
