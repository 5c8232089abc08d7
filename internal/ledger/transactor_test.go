package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"deposit-bridge-go/internal/models"
	"deposit-bridge-go/internal/store"
)

// memStore is an in-memory UserStore whose credit/debit mirror the atomic
// single-record semantics required of real backends: every mutation happens
// under one lock with its precondition, so concurrent tests exercise the
// same guarantees the production stores provide.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User // by id
	byAddr   map[string]string       // address -> id
	deposits map[string]bool         // tx hash

	failAll   bool  // inject infrastructure errors
	insertErr error // one-shot InsertUser error
	missOnce  bool  // one-shot GetUserByAddress miss
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.User),
		byAddr:   make(map[string]string),
		deposits: make(map[string]bool),
	}
}

var errInfra = errors.New("store unreachable")

func (m *memStore) GetUserByAddress(_ context.Context, address string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errInfra
	}
	if m.missOnce {
		m.missOnce = false
		return nil, store.ErrUserNotFound
	}
	id, ok := m.byAddr[address]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return copyUser(m.users[id]), nil
}

func (m *memStore) GetUserById(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errInfra
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *memStore) InsertUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		err := m.insertErr
		m.insertErr = nil
		return err
	}
	if m.failAll {
		return errInfra
	}
	if _, exists := m.byAddr[user.WalletAddress]; exists {
		return store.ErrUserExists
	}
	m.users[user.Id] = copyUser(user)
	m.byAddr[user.WalletAddress] = user.Id
	return nil
}

func (m *memStore) CreditBalance(_ context.Context, address string, amountWei *big.Int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return false, errInfra
	}
	id, ok := m.byAddr[address]
	if !ok {
		return false, nil
	}
	u := m.users[id]
	u.Account.BalanceWei = new(big.Int).Add(u.Account.BalanceWei, amountWei)
	now := time.Now().UTC()
	u.Account.UpdatedAt = now
	u.LastFundedAt = &now
	return true, nil
}

func (m *memStore) DebitBalance(_ context.Context, id string, amountWei *big.Int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errInfra
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if u.Account.BalanceWei.Cmp(amountWei) < 0 {
		return nil, nil
	}
	u.Account.BalanceWei = new(big.Int).Sub(u.Account.BalanceWei, amountWei)
	u.Account.UpdatedAt = time.Now().UTC()
	return copyUser(u), nil
}

func (m *memStore) RecordDeposit(_ context.Context, dep models.DepositEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errInfra
	}
	if m.deposits[dep.TxHash] {
		return store.ErrDuplicateDeposit
	}
	m.deposits[dep.TxHash] = true
	return nil
}

func (m *memStore) Close(_ context.Context) error { return nil }

func copyUser(u *models.User) *models.User {
	dup := *u
	dup.Account.BalanceWei = new(big.Int).Set(u.Account.BalanceWei)
	if u.LastFundedAt != nil {
		t := *u.LastFundedAt
		dup.LastFundedAt = &t
	}
	return &dup
}

func (m *memStore) balanceOf(t *testing.T, address string) *big.Int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byAddr[address]
	if !ok {
		t.Fatalf("no user for address %s", address)
	}
	return new(big.Int).Set(m.users[id].Account.BalanceWei)
}

func eth(units int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(WeiDecimals), nil)
	return wei.Mul(wei, big.NewInt(units))
}

func TestFindOrCreateUser_CreatesOnce(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	first, err := tr.FindOrCreateUser(ctx, "0xABCDEF0123456789abcdef0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("FindOrCreateUser failed: %v", err)
	}
	if first.WalletAddress != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("address not lower-cased: %s", first.WalletAddress)
	}
	if first.Account.BalanceWei.Sign() != 0 {
		t.Errorf("new user balance should be zero, got %s", first.Account.BalanceWei)
	}

	second, err := tr.FindOrCreateUser(ctx, "0xabcdef0123456789abcdef0123456789abcdef01")
	if err != nil {
		t.Fatalf("second FindOrCreateUser failed: %v", err)
	}
	if second.Id != first.Id {
		t.Errorf("expected same user id, got %s and %s", first.Id, second.Id)
	}
	if len(ms.users) != 1 {
		t.Errorf("expected exactly one user record, got %d", len(ms.users))
	}
}

func TestFindOrCreateUser_LosesInsertRace(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	// The winner's record already exists, but the loser saw "absent" before
	// its insert: miss the first lookup and fail the insert with the
	// duplicate sentinel, so only the fallback lookup can succeed.
	winner, err := tr.FindOrCreateUser(ctx, "0xaaaa")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	ms.missOnce = true
	ms.insertErr = store.ErrUserExists

	loser, err := tr.FindOrCreateUser(ctx, "0xAAAA")
	if err != nil {
		t.Fatalf("losing call should fall back to lookup, got error: %v", err)
	}
	if loser.Id != winner.Id {
		t.Errorf("loser should return winner's record: %s != %s", loser.Id, winner.Id)
	}
}

func TestFindOrCreateUser_Concurrent(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := tr.FindOrCreateUser(ctx, "0xC0FFEE")
			if err != nil {
				t.Errorf("concurrent FindOrCreateUser failed: %v", err)
				return
			}
			ids[i] = u.Id
		}(i)
	}
	wg.Wait()

	if len(ms.users) != 1 {
		t.Fatalf("expected one user record, got %d", len(ms.users))
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Errorf("call %d returned id %s, want %s", i, ids[i], ids[0])
		}
	}
}

func TestCredit_AppliesAndStamps(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	if _, err := tr.FindOrCreateUser(ctx, "0xa1"); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err := tr.Credit(ctx, models.DepositEvent{
		From: "0xA1", ValueWei: eth(2), TxHash: "0xt1", BlockNumber: 7,
	})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	if got := ms.balanceOf(t, "0xa1"); got.Cmp(eth(2)) != 0 {
		t.Errorf("balance = %s, want %s", got, eth(2))
	}

	u, _ := ms.GetUserByAddress(ctx, "0xa1")
	if u.LastFundedAt == nil {
		t.Error("lastFundedAt not stamped on credit")
	}
}

func TestCredit_ReplayIsNoop(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	if _, err := tr.FindOrCreateUser(ctx, "0xa1"); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	dep := models.DepositEvent{From: "0xa1", ValueWei: eth(3), TxHash: "0xdup", BlockNumber: 9}
	for i := 0; i < 3; i++ {
		if err := tr.Credit(ctx, dep); err != nil {
			t.Fatalf("Credit replay %d errored: %v", i, err)
		}
	}

	if got := ms.balanceOf(t, "0xa1"); got.Cmp(eth(3)) != 0 {
		t.Errorf("replayed credit applied more than once: balance = %s, want %s", got, eth(3))
	}
}

func TestCredit_UnknownAddressDropped(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)

	err := tr.Credit(context.Background(), models.DepositEvent{
		From: "0xnobody", ValueWei: eth(1), TxHash: "0xt9", BlockNumber: 3,
	})
	if err != nil {
		t.Fatalf("credit to unknown address must not error, got: %v", err)
	}
	if len(ms.users) != 0 {
		t.Error("credit to unknown address must not create a user")
	}
}

func TestCredit_CommutativeAcrossInterleavings(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	if _, err := tr.FindOrCreateUser(ctx, "0xa1"); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := tr.Credit(ctx, models.DepositEvent{
				From:        "0xa1",
				ValueWei:    eth(1),
				TxHash:      fmt.Sprintf("0xtx%d", i),
				BlockNumber: uint64(i),
			})
			if err != nil {
				t.Errorf("concurrent credit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := ms.balanceOf(t, "0xa1"); got.Cmp(eth(n)) != 0 {
		t.Errorf("balance = %s, want %s", got, eth(n))
	}
}

func TestDebit_Applied(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	u, _ := tr.FindOrCreateUser(ctx, "0xa1")
	if _, err := ms.CreditBalance(ctx, "0xa1", eth(5)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	res := tr.Debit(ctx, u.Id, eth(3))
	if !res.Applied() {
		t.Fatalf("debit should succeed, got status %s", res.Status)
	}
	if res.NewBalanceWei.Cmp(eth(2)) != 0 {
		t.Errorf("new balance = %s, want %s", res.NewBalanceWei, eth(2))
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	u, _ := tr.FindOrCreateUser(ctx, "0xa1")
	if _, err := ms.CreditBalance(ctx, "0xa1", eth(1)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	res := tr.Debit(ctx, u.Id, eth(2))
	if res.Status != models.DebitInsufficientFunds {
		t.Errorf("status = %s, want %s", res.Status, models.DebitInsufficientFunds)
	}
	if got := ms.balanceOf(t, "0xa1"); got.Cmp(eth(1)) != 0 {
		t.Errorf("denied debit must not mutate balance: %s", got)
	}
}

func TestDebit_UnknownUser(t *testing.T) {
	tr := NewTransactor(newMemStore())

	res := tr.Debit(context.Background(), "missing-id", eth(1))
	if res.Status != models.DebitUserNotFound {
		t.Errorf("status = %s, want %s", res.Status, models.DebitUserNotFound)
	}
}

func TestDebit_InfrastructureFailureIsDenied(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	u, _ := tr.FindOrCreateUser(ctx, "0xa1")
	ms.failAll = true

	res := tr.Debit(ctx, u.Id, eth(1))
	if res.Status != models.DebitInfrastructureError {
		t.Errorf("status = %s, want %s", res.Status, models.DebitInfrastructureError)
	}
	if res.Applied() {
		t.Error("infrastructure failure must read as denied")
	}
	if res.Err == nil {
		t.Error("infrastructure variant should carry the cause")
	}
}

func TestDebit_ConcurrentNeverOversubscribes(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	u, _ := tr.FindOrCreateUser(ctx, "0xa1")
	if _, err := ms.CreditBalance(ctx, "0xa1", eth(5)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	const n = 10
	results := make([]models.DebitResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tr.Debit(ctx, u.Id, eth(1))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Applied() {
			succeeded++
		} else if res.Status != models.DebitInsufficientFunds {
			t.Errorf("unexpected denial status %s", res.Status)
		}
	}

	if succeeded != 5 {
		t.Errorf("succeeded = %d, want exactly 5", succeeded)
	}
	if got := ms.balanceOf(t, "0xa1"); got.Sign() != 0 {
		t.Errorf("final balance = %s, want 0", got)
	}
}

func TestDebit_ConcurrentSingleWinner(t *testing.T) {
	ms := newMemStore()
	tr := NewTransactor(ms)
	ctx := context.Background()

	u, _ := tr.FindOrCreateUser(ctx, "0xa1")
	if _, err := ms.CreditBalance(ctx, "0xa1", eth(5)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]models.DebitResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tr.Debit(ctx, u.Id, eth(3))
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, res := range results {
		if res.Applied() {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("exactly one of two concurrent 3.0 debits of a 5.0 balance may succeed, got %d", applied)
	}
	if got := ms.balanceOf(t, "0xa1"); got.Cmp(eth(2)) != 0 {
		t.Errorf("final balance = %s, want %s", got, eth(2))
	}
}
