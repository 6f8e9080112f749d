package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/infra/memory"
	"github.com/vaibhav071104/vaultguard/internal/infra/observability"
	"github.com/vaibhav071104/vaultguard/internal/infra/resilience"
	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// noonUTC is outside the odd-hour window so tests only trigger the
// heuristics they mean to.
var noonUTC = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type captureSink struct {
	mu    sync.Mutex
	calls []string // bodies
}

func (s *captureSink) Notify(_ context.Context, _, _, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, body)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type testEnv struct {
	engine *LedgerEngine
	users  *memory.UserStore
	ledger *memory.LedgerStore
	sink   *captureSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := memory.NewUserStore()
	ledger := memory.NewLedgerStore(users)
	sink := &captureSink{}

	engine := NewLedgerEngine(
		ledger, users, sink, "fraud-team@test",
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 4},
		resilience.NewBulkhead(4),
		observability.NewMetrics(),
		zap.NewNop(),
	)
	engine.now = func() time.Time { return noonUTC }

	return &testEnv{engine: engine, users: users, ledger: ledger, sink: sink}
}

func (env *testEnv) addUser(t *testing.T, username string) (userID, walletID string) {
	t.Helper()
	ctx := context.Background()

	user := &domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		IsActive:  true,
		CreatedAt: noonUTC,
	}
	if err := env.users.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	wallet := &domain.Wallet{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Balance:   decimal.Zero,
		CreatedAt: noonUTC,
	}
	if err := env.ledger.CreateWallet(ctx, wallet); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return user.ID, wallet.ID
}

func (env *testEnv) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := env.ledger.GetWalletByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.Balance
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ============================================================
// Deposit
// ============================================================

func TestDeposit_IncreasesBalanceAndRecords(t *testing.T) {
	env := newTestEnv(t)
	userID, walletID := env.addUser(t, "alice")
	ctx := context.Background()

	txn, err := env.engine.Deposit(ctx, userID, dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if !env.balance(t, userID).Equal(dec("100")) {
		t.Errorf("balance = %s, want 100", env.balance(t, userID))
	}
	if txn.Kind != domain.KindDeposit || txn.WalletID != walletID {
		t.Errorf("unexpected record: %+v", txn)
	}
	if txn.Flagged {
		t.Errorf("plain midday deposit should not be flagged: %q", txn.FlagReason)
	}

	history, err := env.ledger.ListActiveHistory(ctx, walletID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != txn.ID {
		t.Errorf("history = %+v, want the single deposit", history)
	}
}

func TestDeposit_NonPositiveAmountRejected(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, dec("-5")} {
		_, err := env.engine.Deposit(ctx, userID, amount)
		var invalid *domain.ErrInvalidAmount
		if !errors.As(err, &invalid) {
			t.Errorf("deposit(%s): got %v, want ErrInvalidAmount", amount, err)
		}
	}
	if !env.balance(t, userID).IsZero() {
		t.Errorf("balance changed on rejected deposit")
	}
}

func TestDeposit_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Deposit(context.Background(), "nope", dec("10"))
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

// ============================================================
// Withdraw
// ============================================================

func TestWithdraw_DecreasesBalance(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, userID, dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	txn, err := env.engine.Withdraw(ctx, userID, dec("40"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if txn.Kind != domain.KindWithdraw {
		t.Errorf("kind = %s, want withdraw", txn.Kind)
	}
	if !env.balance(t, userID).Equal(dec("60")) {
		t.Errorf("balance = %s, want 60", env.balance(t, userID))
	}
}

// Overdraw and non-positive amounts surface as the same error.
func TestWithdraw_CollapsedError(t *testing.T) {
	env := newTestEnv(t)
	userID, walletID := env.addUser(t, "alice")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, userID, dec("50")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	for _, amount := range []decimal.Decimal{dec("50.01"), decimal.Zero, dec("-1")} {
		_, err := env.engine.Withdraw(ctx, userID, amount)
		var insufficient *domain.ErrInsufficientFunds
		if !errors.As(err, &insufficient) {
			t.Errorf("withdraw(%s): got %v, want ErrInsufficientFunds", amount, err)
		}
	}

	// Failed attempts leave no trace.
	if !env.balance(t, userID).Equal(dec("50")) {
		t.Errorf("balance = %s, want 50", env.balance(t, userID))
	}
	history, _ := env.ledger.ListActiveHistory(ctx, walletID)
	if len(history) != 1 {
		t.Errorf("history has %d records, want only the deposit", len(history))
	}
}

func TestWithdraw_ExactBalanceAllowed(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, userID, dec("50")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Withdraw(ctx, userID, dec("50")); err != nil {
		t.Fatalf("withdraw to zero: %v", err)
	}
	if !env.balance(t, userID).IsZero() {
		t.Errorf("balance = %s, want 0", env.balance(t, userID))
	}
}

// ============================================================
// Transfer
// ============================================================

func TestTransfer_MovesFunds(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.addUser(t, "alice")
	bobID, bobWallet := env.addUser(t, "bob")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, aliceID, dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	txn, err := env.engine.Transfer(ctx, aliceID, "bob", dec("30"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if !env.balance(t, aliceID).Equal(dec("70")) {
		t.Errorf("alice balance = %s, want 70", env.balance(t, aliceID))
	}
	if !env.balance(t, bobID).Equal(dec("30")) {
		t.Errorf("bob balance = %s, want 30", env.balance(t, bobID))
	}
	if txn.Kind != domain.KindTransfer || txn.TargetWalletID != bobWallet {
		t.Errorf("unexpected record: %+v", txn)
	}
}

func TestTransfer_InsufficientOrNonPositive(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.addUser(t, "alice")
	env.addUser(t, "bob")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, aliceID, dec("10")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	for _, amount := range []decimal.Decimal{dec("10.01"), decimal.Zero, dec("-3")} {
		_, err := env.engine.Transfer(ctx, aliceID, "bob", amount)
		var insufficient *domain.ErrInsufficientFunds
		if !errors.As(err, &insufficient) {
			t.Errorf("transfer(%s): got %v, want ErrInsufficientFunds", amount, err)
		}
	}
}

func TestTransfer_SelfRejected(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.addUser(t, "alice")

	_, err := env.engine.Transfer(context.Background(), aliceID, "alice", dec("1"))
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestTransfer_DeletedRecipientRejected(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.addUser(t, "alice")
	bobID, _ := env.addUser(t, "bob")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, aliceID, dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.SoftDeleteAccountOwner(ctx, bobID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	_, err := env.engine.Transfer(ctx, aliceID, "bob", dec("10"))
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("got %v, want ErrNotFound for deleted recipient", err)
	}
	if !env.balance(t, aliceID).Equal(dec("100")) {
		t.Errorf("alice balance changed on rejected transfer")
	}
}

// Opposite-direction transfers running concurrently must not deadlock and
// must conserve the total.
func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.addUser(t, "alice")
	bobID, _ := env.addUser(t, "bob")
	ctx := context.Background()

	if _, err := env.engine.Deposit(ctx, aliceID, dec("1000")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Deposit(ctx, bobID, dec("1000")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := env.engine.Transfer(ctx, aliceID, "bob", dec("1")); err != nil {
				t.Errorf("alice->bob: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := env.engine.Transfer(ctx, bobID, "alice", dec("1")); err != nil {
				t.Errorf("bob->alice: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	total := env.balance(t, aliceID).Add(env.balance(t, bobID))
	if !total.Equal(dec("2000")) {
		t.Errorf("total = %s, want 2000", total)
	}
}

// ============================================================
// Fraud flagging through the engine
// ============================================================

func TestDeposit_OddHourFlagged(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	env.engine.now = func() time.Time {
		return time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	}

	txn, err := env.engine.Deposit(context.Background(), userID, dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !txn.Flagged {
		t.Fatal("3am deposit should be flagged")
	}
	if txn.FlagReason != "Transaction at odd hour" {
		t.Errorf("reason = %q", txn.FlagReason)
	}
}

func TestDeposit_LargeAmountFlagged(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")

	txn, err := env.engine.Deposit(context.Background(), userID, dec("10000.01"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !txn.Flagged || txn.FlagReason != "Large deposit amount" {
		t.Errorf("flagged=%v reason=%q, want large-amount flag", txn.Flagged, txn.FlagReason)
	}
}

// The record being created never counts toward its own baseline: a first
// deposit has no history, so the unusual-amount heuristic cannot fire.
func TestFirstDeposit_NoAnomalyBaseline(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")

	txn, err := env.engine.Deposit(context.Background(), userID, dec("9999"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if txn.Flagged {
		t.Errorf("first deposit flagged: %q", txn.FlagReason)
	}
}

func TestWithdraw_UnusualAmountFlagged(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	// Build a modest baseline, spaced out so velocity stays quiet.
	base := noonUTC
	for i := 0; i < 5; i++ {
		env.engine.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if _, err := env.engine.Deposit(ctx, userID, dec("100")); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	env.engine.now = func() time.Time { return base.Add(24 * time.Hour) }
	txn, err := env.engine.Withdraw(ctx, userID, dec("400"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !txn.Flagged || txn.FlagReason != "Unusual transaction amount" {
		t.Errorf("flagged=%v reason=%q, want unusual-amount flag", txn.Flagged, txn.FlagReason)
	}
}

func TestDeposit_VelocityFlagged(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	// Four deposits in the same minute; the fifth sees 4 recent entries.
	for i := 0; i < 4; i++ {
		env.engine.now = func() time.Time { return noonUTC.Add(time.Duration(i) * time.Second) }
		if _, err := env.engine.Deposit(ctx, userID, dec("100")); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	env.engine.now = func() time.Time { return noonUTC.Add(10 * time.Second) }
	txn, err := env.engine.Deposit(ctx, userID, dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !txn.Flagged {
		t.Fatal("fifth rapid deposit should be flagged")
	}
	if txn.FlagReason != "High transaction frequency" {
		t.Errorf("reason = %q", txn.FlagReason)
	}
}

func TestFlagReason_JoinsAllSignals(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	env.engine.now = func() time.Time {
		return time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	}
	if _, err := env.engine.Deposit(ctx, userID, dec("100")); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	txn, err := env.engine.Deposit(ctx, userID, dec("20000"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	want := "Unusual transaction amount, Transaction at odd hour, Large deposit amount"
	if txn.FlagReason != want {
		t.Errorf("reason = %q, want %q", txn.FlagReason, want)
	}
}

// ============================================================
// Alerts
// ============================================================

func TestFlaggedTransaction_EmitsAlert(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")

	txn, err := env.engine.Deposit(context.Background(), userID, dec("10001"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !txn.Flagged {
		t.Fatal("deposit should be flagged")
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if env.sink.count() != 1 {
		t.Fatalf("alert count = %d, want 1", env.sink.count())
	}

	env.sink.mu.Lock()
	body := env.sink.calls[0]
	env.sink.mu.Unlock()
	want := "User alice made a flagged deposit of 10001. Reason: Large deposit amount"
	if body != want {
		t.Errorf("alert body = %q, want %q", body, want)
	}
}

func TestUnflaggedTransaction_NoAlert(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")

	if _, err := env.engine.Deposit(context.Background(), userID, dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if env.sink.count() != 0 {
		t.Errorf("alert emitted for clean deposit")
	}
}

// A sink that always fails must not fail the operation itself.
type failingSink struct{}

func (failingSink) Notify(context.Context, string, string, string) error {
	return errors.New("sink down")
}

func TestAlertFailure_DoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	env.engine.sink = failingSink{}

	txn, err := env.engine.Deposit(context.Background(), userID, dec("10001"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !txn.Flagged {
		t.Fatal("deposit should be flagged")
	}
	if !env.balance(t, userID).Equal(dec("10001")) {
		t.Errorf("balance = %s, want 10001", env.balance(t, userID))
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.engine.metrics.Snapshot().AlertFailures == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if env.engine.metrics.Snapshot().AlertFailures != 1 {
		t.Errorf("alert failure counter = %d, want 1", env.engine.metrics.Snapshot().AlertFailures)
	}
}

// ============================================================
// History and soft deletes
// ============================================================

func TestGetHistory_NewestFirstAndHidesDeleted(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		env.engine.now = func() time.Time { return noonUTC.Add(time.Duration(i) * time.Hour) }
		txn, err := env.engine.Deposit(ctx, userID, dec("10"))
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
		ids = append(ids, txn.ID)
	}

	history, err := env.engine.GetHistory(ctx, userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].ID != ids[2] || history[2].ID != ids[0] {
		t.Errorf("history not newest-first: %+v", history)
	}

	if err := env.engine.SoftDeleteTransaction(ctx, ids[1]); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	history, err = env.engine.GetHistory(ctx, userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d records after delete, want 2", len(history))
	}
	for _, txn := range history {
		if txn.ID == ids[1] {
			t.Errorf("deleted record still visible")
		}
	}

	// Balance untouched by the soft delete.
	if !env.balance(t, userID).Equal(dec("30")) {
		t.Errorf("balance = %s, want 30", env.balance(t, userID))
	}
}

func TestSoftDeleteTransaction_Unknown(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.SoftDeleteTransaction(context.Background(), "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

// Soft-deleted records drop out of the fraud baseline too.
func TestScoring_IgnoresDeletedRecords(t *testing.T) {
	env := newTestEnv(t)
	userID, _ := env.addUser(t, "alice")
	ctx := context.Background()

	seed, err := env.engine.Deposit(ctx, userID, dec("1"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.SoftDeleteTransaction(ctx, seed.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// With the seed hidden there is no baseline, so 9000 is not unusual.
	txn, err := env.engine.Deposit(ctx, userID, dec("9000"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if txn.Flagged {
		t.Errorf("flagged against deleted baseline: %q", txn.FlagReason)
	}
}

var _ port.AlertSink = (*captureSink)(nil)
