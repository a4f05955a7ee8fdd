package machine_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coin-ledger/coins"
	"github.com/warp/coin-ledger/machine"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

var (
	owner   = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	created = time.UnixMilli(1741615200000)
)

func newVendor() *machine.Vendor {
	v := machine.NewVendor(owner, "Bob", &txn.Location{Dimension: 0, X: 1, Y: 70, Z: -3, Block: "universalcoins:blockVendor"})
	v.Price = 25
	v.Sell = true
	return v
}

func newRegistry() (*machine.Registry, *record.Memory) {
	mem := record.NewMemory()
	return machine.NewRegistry(mem, machine.WithClock(func() time.Time { return created })), mem
}

func TestLogTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 5, 9, 0, time.FixedZone("", 2*3600))
	assert.Equal(t, "2025/03/10 14:05:09 +0200: ", machine.LogTimestamp(at))
}

func TestSaveNewMachine_LogsAndCreates(t *testing.T) {
	reg, mem := newRegistry()
	ctx := context.Background()
	v := newVendor()

	require.NoError(t, reg.SaveNewMachine(ctx, v))

	lines := mem.Lines(machine.LogPath(v.ID))
	require.Len(t, lines, 1)
	assert.Equal(t, machine.LogTimestamp(created)+"Machine created | MachineID:"+v.ID+
		" | PlayerOwner: "+owner.String()+" | DIM:0 | X:1 | Y:70 | Z:-3 | Block:universalcoins:blockVendor | BlockMeta:0", lines[0])

	mr, ok, err := reg.Load(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.Record{
		ID:           v.ID,
		Owner:        owner,
		Location:     v.Loc,
		Created:      created,
		Transactions: 0,
		State:        v.Snapshot(),
	}, mr)
	assert.Equal(t, "", mem.Header(machine.RecordPath(v.ID)))
}

func TestSaveMachine_RefreshesSnapshotKeepsCreation(t *testing.T) {
	mem := record.NewMemory()
	ctx := context.Background()
	v := newVendor()
	require.NoError(t, machine.NewRegistry(mem, machine.WithClock(func() time.Time { return created })).SaveMachine(ctx, v))

	later := machine.NewRegistry(mem, machine.WithClock(func() time.Time { return created.Add(time.Hour) }))
	v.Price = 40
	require.NoError(t, later.SaveMachine(ctx, v))

	mr, _, err := later.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, created.Equal(mr.Created))
	assert.Equal(t, "40", mr.State["vendor.price"])
}

func TestRecordTransaction_Counts(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()
	v := newVendor()
	first, second := uuid.New(), uuid.New()

	require.NoError(t, reg.RecordTransaction(ctx, v, first))
	require.NoError(t, reg.RecordTransaction(ctx, v, second))

	mr, ok, err := reg.Load(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), mr.Transactions)
	assert.Equal(t, second, mr.LastTransaction)
}

func TestLoad_Malformed(t *testing.T) {
	reg, mem := newRegistry()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, machine.RecordPath("m"), record.Record{"transactions": "-1"}, ""))

	_, _, err := reg.Load(ctx, "m")

	assert.ErrorIs(t, err, record.ErrData)
}

func TestSaveMachine_SnapshotCannotShadowRecordKeys(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()
	m := machine.Stored{Record: machine.Record{ID: "m", State: map[string]string{
		"transactions": "99",
		"machine.id":   "other",
		"custom.key":   "kept",
	}}}

	require.NoError(t, reg.SaveMachine(ctx, m))

	mr, _, err := reg.Load(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "m", mr.ID)
	assert.Equal(t, int64(0), mr.Transactions)
	assert.Equal(t, map[string]string{"custom.key": "kept"}, mr.State)
}

// =============================================================================
// VENDOR
// =============================================================================

func TestVendor_InsertCoins_StopsAtHeadroom(t *testing.T) {
	v := newVendor()
	v.UserCoins = math.MaxInt32 - 20

	taken, rest := v.InsertCoins(coins.Stack{Item: coins.ItemSmallCoinStack, Amount: 64}, nil)

	assert.Equal(t, 2, taken)
	assert.Equal(t, 62, rest.Amount)
	assert.Equal(t, int32(math.MaxInt32-2), v.UserCoins)
}

func TestVendor_InsertCoins_NotCoins(t *testing.T) {
	v := newVendor()

	taken, rest := v.InsertCoins(coins.Stack{Item: "minecraft:dirt", Amount: 10}, nil)

	assert.Zero(t, taken)
	assert.Equal(t, 10, rest.Amount)
	assert.Zero(t, v.UserCoins)
}

func TestVendor_ValidateAndRecordRoundTrip(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()
	v := newVendor()
	v.OwnerCoins = 500
	v.UserCoins = -7
	v.Validate()
	assert.Zero(t, v.UserCoins)

	require.NoError(t, reg.SaveMachine(ctx, v))
	mr, _, err := reg.Load(ctx, v.ID)
	require.NoError(t, err)

	back, err := machine.VendorFromRecord(mr)
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestStored_ActsAsMachine(t *testing.T) {
	reg, mem := newRegistry()
	ctx := context.Background()
	v := newVendor()
	require.NoError(t, reg.SaveMachine(ctx, v))
	mr, _, _ := reg.Load(ctx, v.ID)

	s := machine.Stored{Record: mr}
	require.NoError(t, reg.RecordTransaction(ctx, s, uuid.New()))

	again, _, _ := reg.Load(ctx, v.ID)
	assert.Equal(t, v.Snapshot(), again.State)
	assert.True(t, strings.HasPrefix(machine.Details(s), " | PlayerOwner: "+owner.String()))
	assert.Equal(t, 2, mem.Writes())
}
