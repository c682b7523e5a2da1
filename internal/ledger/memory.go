package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hookGuard/internal/dex"
)

var (
	ErrInsufficientCustody = errors.New("insufficient custody")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountOutOfRange    = errors.New("amount out of uint256 range")
)

// DefaultCustody is the account holding pool custody when none is configured.
var DefaultCustody = common.HexToAddress("0x000000000004444c5dc75cB358380D2e3dE08A90")

// MemoryLedger keeps per-currency account balances in memory. The custody
// account holds every pool's tokens.
type MemoryLedger struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[dex.Currency]map[common.Address]*uint256.Int
	logger   *zap.Logger
}

func NewMemoryLedger(custody common.Address, logger *zap.Logger) *MemoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if custody == (common.Address{}) {
		custody = DefaultCustody
	}
	return &MemoryLedger{
		custody:  custody,
		balances: make(map[dex.Currency]map[common.Address]*uint256.Int),
		logger:   logger,
	}
}

// Custody returns the account that holds pool custody.
func (l *MemoryLedger) Custody() common.Address {
	return l.custody
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %v", ErrAmountOutOfRange, amount)
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrAmountOutOfRange, amount)
	}
	return v, nil
}

func (l *MemoryLedger) balance(currency dex.Currency, account common.Address) *uint256.Int {
	if accounts, ok := l.balances[currency]; ok {
		if v, ok := accounts[account]; ok {
			return v
		}
	}
	return new(uint256.Int)
}

func (l *MemoryLedger) set(currency dex.Currency, account common.Address, v *uint256.Int) {
	accounts, ok := l.balances[currency]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[currency] = accounts
	}
	if v.IsZero() {
		delete(accounts, account)
		return
	}
	accounts[account] = v
}

// transfer moves amount from one account to another. short is returned when
// the sender cannot cover it.
func (l *MemoryLedger) transfer(currency dex.Currency, from, to common.Address, amount *big.Int, short error) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := l.balance(currency, from)
	if fromBal.Lt(v) {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", short, from.Hex(), fromBal.ToBig(), currency, amount)
	}
	toBal := l.balance(currency, to)
	if from == to {
		return nil
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, v)
	if overflow {
		return fmt.Errorf("%w: balance of %s", ErrAmountOutOfRange, to.Hex())
	}
	l.set(currency, from, new(uint256.Int).Sub(fromBal, v))
	l.set(currency, to, next)
	return nil
}

// Take pays amount from custody to to.
func (l *MemoryLedger) Take(currency dex.Currency, to common.Address, amount *big.Int) error {
	if err := l.transfer(currency, l.custody, to, amount, ErrInsufficientCustody); err != nil {
		return err
	}
	l.logger.Debug("take", zap.String("currency", currency.String()), zap.String("to", to.Hex()), zap.String("amount", amount.String()))
	return nil
}

// Settle collects amount from from into custody.
func (l *MemoryLedger) Settle(currency dex.Currency, from common.Address, amount *big.Int) error {
	if err := l.transfer(currency, from, l.custody, amount, ErrInsufficientBalance); err != nil {
		return err
	}
	l.logger.Debug("settle", zap.String("currency", currency.String()), zap.String("from", from.Hex()), zap.String("amount", amount.String()))
	return nil
}

// Mint credits amount to account out of thin air. Used to fund accounts.
func (l *MemoryLedger) Mint(currency dex.Currency, account common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	next, overflow := new(uint256.Int).AddOverflow(l.balance(currency, account), v)
	if overflow {
		return fmt.Errorf("%w: balance of %s", ErrAmountOutOfRange, account.Hex())
	}
	l.set(currency, account, next)
	return nil
}

func (l *MemoryLedger) BalanceOf(currency dex.Currency, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(currency, account).ToBig()
}

// Balance is one non-zero account balance.
type Balance struct {
	Currency string `json:"currency"`
	Account  string `json:"account"`
	Amount   string `json:"amount"`
}

// Balances lists every non-zero balance ordered by currency then account.
func (l *MemoryLedger) Balances() []Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	currencies := make([]dex.Currency, 0, len(l.balances))
	for c := range l.balances {
		currencies = append(currencies, c)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].Less(currencies[j]) })

	out := make([]Balance, 0)
	for _, c := range currencies {
		accounts := make([]common.Address, 0, len(l.balances[c]))
		for a := range l.balances[c] {
			accounts = append(accounts, a)
		}
		sort.Slice(accounts, func(i, j int) bool { return bytes.Compare(accounts[i][:], accounts[j][:]) < 0 })
		for _, a := range accounts {
			out = append(out, Balance{
				Currency: c.String(),
				Account:  a.Hex(),
				Amount:   l.balances[c][a].ToBig().String(),
			})
		}
	}
	return out
}

// Restore replaces all balances with the given set.
func (l *MemoryLedger) Restore(balances []Balance) error {
	next := make(map[dex.Currency]map[common.Address]*uint256.Int)
	for _, b := range balances {
		if !common.IsHexAddress(b.Currency) || !common.IsHexAddress(b.Account) {
			return fmt.Errorf("invalid balance entry %s/%s", b.Currency, b.Account)
		}
		amount, ok := new(big.Int).SetString(b.Amount, 10)
		if !ok {
			return fmt.Errorf("parse amount %q", b.Amount)
		}
		v, err := toUint256(amount)
		if err != nil {
			return err
		}
		c := dex.NewCurrency(b.Currency)
		if next[c] == nil {
			next[c] = make(map[common.Address]*uint256.Int)
		}
		if !v.IsZero() {
			next[c][common.HexToAddress(b.Account)] = v
		}
	}

	l.mu.Lock()
	l.balances = next
	l.mu.Unlock()
	return nil
}
