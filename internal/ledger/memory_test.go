package ledger

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"hookGuard/internal/dex"
)

var (
	usdc  = dex.NewCurrency("0x1000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func TestTakeAndSettle(t *testing.T) {
	l := NewMemoryLedger(common.Address{}, nil)
	if l.Custody() != DefaultCustody {
		t.Fatalf("custody = %s", l.Custody().Hex())
	}
	if err := l.Mint(usdc, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := l.Settle(usdc, alice, big.NewInt(60)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := l.BalanceOf(usdc, l.Custody()); got.Int64() != 60 {
		t.Fatalf("custody balance = %s", got)
	}
	if err := l.Take(usdc, alice, big.NewInt(10)); err != nil {
		t.Fatalf("take: %v", err)
	}
	if got := l.BalanceOf(usdc, alice); got.Int64() != 50 {
		t.Fatalf("alice balance = %s", got)
	}

	if err := l.Settle(usdc, alice, big.NewInt(51)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Take(usdc, alice, big.NewInt(51)); !errors.Is(err, ErrInsufficientCustody) {
		t.Fatalf("expected ErrInsufficientCustody, got %v", err)
	}
	if err := l.Take(usdc, alice, big.NewInt(-1)); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
	if got := l.BalanceOf(usdc, alice); got.Int64() != 50 {
		t.Fatalf("failed ops changed balance: %s", got)
	}
}

func TestMintOverflow(t *testing.T) {
	l := NewMemoryLedger(common.Address{}, nil)
	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := l.Mint(usdc, alice, maxU256); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := l.Mint(usdc, alice, big.NewInt(1)); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := l.Mint(usdc, alice, new(big.Int).Lsh(big.NewInt(1), 256)); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestBalancesRestoreRoundTrip(t *testing.T) {
	l := NewMemoryLedger(common.Address{}, nil)
	weth := dex.NewCurrency("0x2000000000000000000000000000000000000002")
	_ = l.Mint(weth, alice, big.NewInt(7))
	_ = l.Mint(usdc, alice, big.NewInt(5))
	_ = l.Mint(usdc, DefaultCustody, big.NewInt(3))

	balances := l.Balances()
	if len(balances) != 3 {
		t.Fatalf("expected 3 balances, got %+v", balances)
	}
	if balances[0].Currency != usdc.String() || balances[2].Currency != weth.String() {
		t.Fatalf("balances not sorted by currency: %+v", balances)
	}

	restored := NewMemoryLedger(common.Address{}, nil)
	if err := restored.Restore(balances); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.BalanceOf(weth, alice); got.Int64() != 7 {
		t.Fatalf("restored weth = %s", got)
	}
	if err := restored.Restore([]Balance{{Currency: "nope", Account: alice.Hex(), Amount: "1"}}); err == nil {
		t.Fatalf("expected error for invalid currency")
	}
	if err := restored.Restore([]Balance{{Currency: usdc.String(), Account: alice.Hex(), Amount: "x"}}); err == nil {
		t.Fatalf("expected error for invalid amount")
	}
}

func TestSnapshotStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")
	store := NewSnapshotStore(path, true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected no snapshot, got ok=%v err=%v", ok, err)
	}

	l := NewMemoryLedger(common.Address{}, nil)
	_ = l.Mint(usdc, alice, big.NewInt(42))
	if err := store.Save(l); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if snap.Custody != DefaultCustody.Hex() || len(snap.Balances) != 1 || snap.Balances[0].Amount != "42" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	disabled := NewSnapshotStore(path, false)
	if _, ok, _ := disabled.Load(); ok {
		t.Fatalf("disabled store should not load")
	}
}
