package ledger

import (
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	accountsDir = "accounts"
	playersDir  = "players"
	ext         = ".properties"
)

// VersionStart is the version of a record that has never been written.
const VersionStart int64 = math.MinInt32

// NotFound is the balance reported for an account that does not exist.
const NotFound int32 = -1

func AccountPath(number string) string { return accountsDir + "/" + number + ext }

func PlayerPath(player uuid.UUID) string { return playersDir + "/" + player.String() + ext }

var errNegativeBalance = errors.New("balance is negative")

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a balance owned by one player. Balance stays within
// [0, coins.MaxUnits]; Version grows by one on every write.
type Account struct {
	Number  string
	Owner   uuid.UUID
	Balance int32
	Version int64
}

func (a Account) record() record.Record {
	rec := record.Record{}
	rec.SetInt("version", a.Version)
	rec.Set("number", a.Number)
	rec.SetUUID("owner.id", a.Owner)
	rec.SetInt("balance", int64(a.Balance))
	return rec
}

func decodeAccount(number string, rec record.Record) (Account, error) {
	a := Account{Number: rec.Get("number", number)}
	var err error
	if a.Owner, err = rec.RequireUUID("owner.id"); err != nil {
		return Account{}, err
	}
	if a.Balance, err = rec.Int32("balance", 0); err != nil {
		return Account{}, err
	}
	if a.Balance < 0 {
		return Account{}, &record.DataError{Key: "balance", Value: rec["balance"], Err: errNegativeBalance}
	}
	if a.Version, err = rec.Int64("version", VersionStart); err != nil {
		return Account{}, err
	}
	return a, nil
}

// =============================================================================
// PLAYER RECORD
// =============================================================================

// PlayerRecord lists the accounts a player owns. Every address in it is
// owned by Player.
type PlayerRecord struct {
	Player     uuid.UUID
	Version    int64
	Primary    *txn.AccountAddress
	Alternates []txn.AccountAddress
}

func freshPlayer(player uuid.UUID) PlayerRecord {
	return PlayerRecord{Player: player, Version: VersionStart}
}

func (p PlayerRecord) record() record.Record {
	rec := record.Record{}
	rec.SetInt("version", p.Version)
	rec.SetUUID("id", p.Player)
	if p.Primary != nil {
		rec.Set("account", p.Primary.String())
	}
	if len(p.Alternates) > 0 {
		refs := make([]string, len(p.Alternates))
		for i, a := range p.Alternates {
			refs[i] = a.String()
		}
		rec.Set("alternative.accounts", strings.Join(refs, "|"))
	}
	return rec
}

func decodePlayer(player uuid.UUID, rec record.Record) (PlayerRecord, error) {
	p := freshPlayer(player)
	var err error
	if p.Version, err = rec.Int64("version", VersionStart); err != nil {
		return PlayerRecord{}, err
	}
	if id, ok, err := rec.UUID("id"); err != nil {
		return PlayerRecord{}, err
	} else if ok {
		p.Player = id
	}
	if v, ok := rec["account"]; ok && v != "" {
		ref, err := parseRef(p.Player, "account", v)
		if err != nil {
			return PlayerRecord{}, err
		}
		p.Primary = &ref
	}
	if v, ok := rec["alternative.accounts"]; ok && v != "" {
		for _, part := range strings.Split(v, "|") {
			ref, err := parseRef(p.Player, "alternative.accounts", part)
			if err != nil {
				return PlayerRecord{}, err
			}
			p.Alternates = append(p.Alternates, ref)
		}
	}
	return p, nil
}

var errBadReference = errors.New(`account reference is not "<number>;<name>"`)

func parseRef(owner uuid.UUID, key, v string) (txn.AccountAddress, error) {
	number, name, ok := strings.Cut(v, ";")
	if !ok || number == "" {
		return txn.AccountAddress{}, &record.DataError{Key: key, Value: v, Err: errBadReference}
	}
	return txn.AccountAddress{Number: number, Name: name, Owner: owner}, nil
}
