package machine

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/coins"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

// =============================================================================
// VENDOR - A vending machine with two coin tallies
// =============================================================================

// Vendor sells (or buys) one product at a fixed price. UserCoins holds what
// the current customer inserted; OwnerCoins holds the owner's takings.
type Vendor struct {
	ID         string
	Owner      uuid.UUID
	OwnerName  string
	OwnerCoins int32
	UserCoins  int32
	Price      int32
	Infinite   bool
	Sell       bool
	Loc        *txn.Location
}

func NewVendor(owner uuid.UUID, ownerName string, loc *txn.Location) *Vendor {
	return &Vendor{ID: uuid.NewString(), Owner: owner, OwnerName: ownerName, Loc: loc}
}

func (v *Vendor) MachineID() string       { return v.ID }
func (v *Vendor) OwnerID() uuid.UUID      { return v.Owner }
func (v *Vendor) Location() *txn.Location { return v.Loc }

const (
	keyVendorOwnerName  = "vendor.owner.name"
	keyVendorOwnerCoins = "vendor.coins.owner"
	keyVendorUserCoins  = "vendor.coins.user"
	keyVendorPrice      = "vendor.price"
	keyVendorInfinite   = "vendor.infinite"
	keyVendorSell       = "vendor.sell"
)

func (v *Vendor) Snapshot() map[string]string {
	return map[string]string{
		keyVendorOwnerName:  v.OwnerName,
		keyVendorOwnerCoins: strconv.FormatInt(int64(v.OwnerCoins), 10),
		keyVendorUserCoins:  strconv.FormatInt(int64(v.UserCoins), 10),
		keyVendorPrice:      strconv.FormatInt(int64(v.Price), 10),
		keyVendorInfinite:   strconv.FormatBool(v.Infinite),
		keyVendorSell:       strconv.FormatBool(v.Sell),
	}
}

// Validate resets negative tallies and price to 0.
func (v *Vendor) Validate() {
	if v.OwnerCoins < 0 {
		v.OwnerCoins = 0
	}
	if v.UserCoins < 0 {
		v.UserCoins = 0
	}
	if v.Price < 0 {
		v.Price = 0
	}
}

// InsertCoins moves as many coins from s into the user tally as fit below
// coins.MaxUnits. It returns the number taken and what is left of s.
func (v *Vendor) InsertCoins(s coins.Stack, fn coins.ValueFunc) (int, coins.Stack) {
	if fn == nil {
		fn = coins.DenominationValue
	}
	one := s
	one.Amount = 1
	unit := fn(one)
	if unit <= 0 || unit > int64(coins.MaxUnits) {
		return 0, s
	}
	n := coins.Fit(v.UserCoins, int(unit), s.Amount)
	v.UserCoins += int32(int64(n) * unit)
	s.Amount -= n
	return n, s
}

// VendorFromRecord rebuilds a vendor from its stored record.
func VendorFromRecord(r Record) (*Vendor, error) {
	st := record.Record(r.State)
	v := &Vendor{ID: r.ID, Owner: r.Owner, Loc: r.Location, OwnerName: st.Get(keyVendorOwnerName, "")}
	var err error
	if v.OwnerCoins, err = st.Int32(keyVendorOwnerCoins, 0); err != nil {
		return nil, err
	}
	if v.UserCoins, err = st.Int32(keyVendorUserCoins, 0); err != nil {
		return nil, err
	}
	if v.Price, err = st.Int32(keyVendorPrice, 0); err != nil {
		return nil, err
	}
	if v.Infinite, err = st.Bool(keyVendorInfinite, false); err != nil {
		return nil, err
	}
	if v.Sell, err = st.Bool(keyVendorSell, false); err != nil {
		return nil, err
	}
	v.Validate()
	return v, nil
}

// =============================================================================
// STORED - A machine known only from its record
// =============================================================================

// Stored presents a MachineRecord as a txn.Machine whose snapshot is the
// stored state, for tools that act on machines that are not loaded.
type Stored struct {
	Record Record
}

func (s Stored) MachineID() string       { return s.Record.ID }
func (s Stored) OwnerID() uuid.UUID      { return s.Record.Owner }
func (s Stored) Location() *txn.Location { return s.Record.Location }

func (s Stored) Snapshot() map[string]string {
	out := make(map[string]string, len(s.Record.State))
	for k, v := range s.Record.State {
		out[k] = v
	}
	return out
}
