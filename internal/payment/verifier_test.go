package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/chain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

func TestVerify_NoPendingPayment(t *testing.T) {
	d := newDevice(t, newTestServer(t), 0, &stubChain{})
	if _, err := d.verifier.Verify(context.Background()); !errors.Is(err, domain.ErrNoPendingPayment) {
		t.Fatalf("expected ErrNoPendingPayment, got %v", err)
	}
}

func TestVerify_ExactMatch(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)

	checkout, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if state, _ := d.verifier.State(ctx); state != StateAwaitingExternalApproval {
		t.Errorf("expected awaiting approval, got %s", state)
	}

	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeVerified {
		t.Fatalf("expected verified, got %s: %s", out.Kind, out.Diagnostic)
	}
	hash := domain.MustParseTxHash(txHash(1))
	if out.TxHash != hash {
		t.Errorf("expected %s, got %s", hash, out.TxHash)
	}

	if consumed, _ := d.consumption.IsConsumed(ctx, hash); !consumed {
		t.Error("expected hash consumed locally")
	}
	if consumed, _ := srv.store.Consumption().IsConsumed(ctx, hash); !consumed {
		t.Error("expected hash consumed on server")
	}
	if _, err := d.pending.Active(ctx); !errors.Is(err, domain.ErrNoPendingPayment) {
		t.Errorf("expected pending cleared, got %v", err)
	}
	if state, _ := d.verifier.State(ctx); state != StateNoPendingPayment {
		t.Errorf("expected no pending payment, got %s", state)
	}

	rec, err := d.history.Get(ctx, checkout.Payment.CorrelationID)
	if err != nil {
		t.Fatalf("history Get: %v", err)
	}
	if h, ok := rec.Settlement.TxHash(); !ok || h != hash {
		t.Errorf("expected completed %s, got %s", hash, rec.Settlement.Status())
	}

	d.history.Flush()
	remoteRecs, _ := srv.store.Transfers().List(ctx, "account-0")
	if len(remoteRecs) != 1 || remoteRecs[0].Settlement.Status() != domain.TransferStatusCompleted {
		t.Errorf("expected completed record pushed to server, got %+v", remoteRecs)
	}
}

func TestVerify_AmountTwoPercentUnder(t *testing.T) {
	ctx := context.Background()
	ch := &stubChain{}
	d := newDevice(t, newTestServer(t), 0, ch)

	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "9.8").BaseUnits()))

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeNotYetVisible || out.Reason != chain.ReasonAmountMismatch {
		t.Fatalf("expected amount mismatch, got %s/%s", out.Kind, out.Reason)
	}
	if !strings.Contains(out.Diagnostic, "9.8") {
		t.Errorf("diagnostic should name the closest amount: %q", out.Diagnostic)
	}
	if _, err := d.pending.Active(ctx); err != nil {
		t.Errorf("expected payment still pending, got %v", err)
	}
}

func TestVerify_ConsumedOnServer(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)
	hash := domain.MustParseTxHash(txHash(1))

	_, err := srv.store.Consumption().MarkConsumed(ctx, storage.Mark{TxHash: hash, Amount: "10", ClaimID: "elsewhere", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("seed server: %v", err)
	}

	checkout, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeAlreadyConsumed {
		t.Fatalf("expected already consumed, got %s", out.Kind)
	}
	if _, err := d.pending.Active(ctx); !errors.Is(err, domain.ErrNoPendingPayment) {
		t.Errorf("expected pending cleared, got %v", err)
	}

	excluded, _ := d.consumption.ExcludedHashes(ctx, "next-order")
	if !excluded.Has(hash) {
		t.Error("foreign hash should be excluded from later searches")
	}

	rec, _ := d.history.Get(ctx, checkout.Payment.CorrelationID)
	if rec.Settlement.Status() != domain.TransferStatusFailed {
		t.Errorf("expected failed record, got %s", rec.Settlement.Status())
	}
}

func TestVerify_RemoteUnreachable_NothingWritten(t *testing.T) {
	ctx := context.Background()
	ch := &stubChain{}
	d := newDevice(t, newTestServer(t), 0, ch)

	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	d.history.Flush()
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))
	d.remote.down.Store(true)

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeNotYetVisible {
		t.Fatalf("expected not yet visible, got %s", out.Kind)
	}
	if !strings.Contains(out.Diagnostic, "connection") {
		t.Errorf("expected connection guidance, got %q", out.Diagnostic)
	}
	if consumed, _ := d.consumption.IsConsumed(ctx, domain.MustParseTxHash(txHash(1))); consumed {
		t.Error("nothing should be consumed while the server is unreachable")
	}
}

func TestVerify_RetryAfterFailedMark(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)
	hash := domain.MustParseTxHash(txHash(1))

	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))
	d.remote.marksDown.Store(true)

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeNotYetVisible {
		t.Fatalf("expected not yet visible, got %s", out.Kind)
	}

	// The claim stands locally and is not excluded from its own retry.
	if consumed, _ := d.consumption.IsConsumed(ctx, hash); !consumed {
		t.Fatal("expected local claim")
	}

	// The server comes back, and the transfer scrolls out of the logs.
	d.remote.marksDown.Store(false)
	ch.setLogs()

	out, err = d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("retry Verify: %v", err)
	}
	if out.Kind != OutcomeVerified || out.TxHash != hash {
		t.Fatalf("expected verified %s, got %s %s", hash, out.Kind, out.TxHash)
	}
	if n := ch.getLogs.Load(); n != 1 {
		t.Errorf("retry should not search again, got %d searches", n)
	}
	if consumed, _ := srv.store.Consumption().IsConsumed(ctx, hash); !consumed {
		t.Error("expected server mark after retry")
	}
}

func TestVerify_ExcludesConsumedHashes(t *testing.T) {
	ctx := context.Background()
	ch := &stubChain{}
	d := newDevice(t, newTestServer(t), 0, ch)
	ten := amount(t, "10").BaseUnits()

	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, ten))
	if out, _ := d.verifier.Verify(ctx); out.Kind != OutcomeVerified {
		t.Fatalf("first order: expected verified, got %s", out.Kind)
	}

	// Same amount again: the first transfer must not pay for the second order.
	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeNotYetVisible || out.Reason != chain.ReasonNoTransfersFound {
		t.Fatalf("expected no transfers found, got %s/%s", out.Kind, out.Reason)
	}

	ch.setLogs(transferLog(txHash(1), buyer, shop, ten), transferLog(txHash(2), buyer, shop, ten))
	out, err = d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeVerified || out.TxHash != domain.MustParseTxHash(txHash(2)) {
		t.Fatalf("expected second transfer, got %s %s", out.Kind, out.TxHash)
	}
}

func TestVerify_ConcurrentDevicesOneHash(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	ch.setLogs(transferLog(txHash(7), buyer, shop, amount(t, "10").BaseUnits()))

	const n = 8
	devices := make([]*device, n)
	for i := range devices {
		devices[i] = newDevice(t, srv, i, ch)
		if _, err := devices[i].verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
			t.Fatalf("Begin %d: %v", i, err)
		}
	}

	outcomes := make([]Outcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, d := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = d.verifier.Verify(ctx)
		}()
	}
	wg.Wait()

	verified := 0
	for i := range devices {
		if errs[i] != nil {
			t.Fatalf("device %d: %v", i, errs[i])
		}
		switch outcomes[i].Kind {
		case OutcomeVerified:
			verified++
		case OutcomeAlreadyConsumed:
		default:
			t.Errorf("device %d: unexpected outcome %s", i, outcomes[i].Kind)
		}
	}
	if verified != 1 {
		t.Fatalf("expected exactly one verified order, got %d", verified)
	}
}

func TestVerify_SingleFlight(t *testing.T) {
	ctx := context.Background()
	ch := &stubChain{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := newDevice(t, newTestServer(t), 0, ch)
	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))

	const callers = 5
	results := make(chan Outcome, callers)
	var wg sync.WaitGroup
	verify := func() {
		defer wg.Done()
		out, err := d.verifier.Verify(ctx)
		if err != nil {
			t.Errorf("Verify: %v", err)
			return
		}
		results <- out
	}

	wg.Add(1)
	go verify()
	<-ch.entered

	if state, _ := d.verifier.State(ctx); state != StateVerifying {
		t.Errorf("expected verifying, got %s", state)
	}

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go verify()
	}
	time.Sleep(50 * time.Millisecond)
	close(ch.release)
	wg.Wait()
	close(results)

	for out := range results {
		if out.Kind != OutcomeVerified {
			t.Errorf("expected shared verified outcome, got %s", out.Kind)
		}
	}
	if n := ch.getLogs.Load(); n != 1 {
		t.Errorf("expected one search, got %d", n)
	}
}

func TestCancel_RecordsFailure(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newTestServer(t), 0, &stubChain{})

	checkout, err := d.verifier.Begin(ctx, amount(t, "3"), buyer, shop)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(checkout.Payload.Data) != 68 || !strings.HasPrefix(checkout.Payload.URI, "ethereum:") {
		t.Errorf("unexpected hand-off payload %+v", checkout.Payload)
	}

	if _, err := d.verifier.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	rec, _ := d.history.Get(ctx, checkout.Payment.CorrelationID)
	if rec.Settlement.Status() != domain.TransferStatusFailed || rec.Settlement.Reason() != "cancelled" {
		t.Errorf("expected cancelled record, got %s %q", rec.Settlement.Status(), rec.Settlement.Reason())
	}
	if _, err := d.verifier.Cancel(ctx); !errors.Is(err, domain.ErrNoPendingPayment) {
		t.Errorf("expected ErrNoPendingPayment, got %v", err)
	}
}

func TestVerify_ResumesAfterLocalFailure(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)
	hist := &failingHistory{HistoryRepository: d.store.History()}
	hist.fails.Store(1)
	d.useRepos(t, d.store.Consumed(), hist)
	hash := domain.MustParseTxHash(txHash(1))

	checkout, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))

	if _, err := d.verifier.Verify(ctx); err == nil {
		t.Fatal("expected the completed record write to fail")
	}
	if consumed, _ := srv.store.Consumption().IsConsumed(ctx, hash); !consumed {
		t.Fatal("server should have accepted the claim")
	}

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("retry Verify: %v", err)
	}
	if out.Kind != OutcomeVerified || out.TxHash != hash {
		t.Fatalf("expected verified %s, got %s %s", hash, out.Kind, out.Diagnostic)
	}
	if n := ch.getLogs.Load(); n != 1 {
		t.Errorf("retry should not search again, got %d searches", n)
	}
	if _, err := d.pending.Active(ctx); !errors.Is(err, domain.ErrNoPendingPayment) {
		t.Errorf("expected pending cleared, got %v", err)
	}
	rec, _ := d.history.Get(ctx, checkout.Payment.CorrelationID)
	if h, ok := rec.Settlement.TxHash(); !ok || h != hash {
		t.Errorf("expected completed record, got %s", rec.Settlement.Status())
	}
}

func TestVerify_CancelledAfterAccept(t *testing.T) {
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)
	d.useRepos(t, d.store.Consumed(), &failingHistory{HistoryRepository: d.store.History()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.remote.afterMark = cancel

	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeVerified {
		t.Fatalf("expected verified, got %s", out.Kind)
	}
	if _, err := d.pending.Active(context.Background()); !errors.Is(err, domain.ErrNoPendingPayment) {
		t.Errorf("expected pending cleared, got %v", err)
	}
}

func TestVerify_HistoryPushesStayOrdered(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)
	d.remote.pendingDelay = 100 * time.Millisecond

	checkout, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))
	if out, err := d.verifier.Verify(ctx); err != nil || out.Kind != OutcomeVerified {
		t.Fatalf("expected verified, got %s %v", out.Kind, err)
	}

	if _, err := d.history.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	rec, err := d.history.Get(ctx, checkout.Payment.CorrelationID)
	if err != nil {
		t.Fatalf("history Get: %v", err)
	}
	if rec.Settlement.Status() != domain.TransferStatusCompleted {
		t.Errorf("expected completed after sync, got %s", rec.Settlement.Status())
	}
}

func TestVerify_RejectedMarkRecordedOnce(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	ch := &stubChain{}
	d := newDevice(t, srv, 0, ch)
	consumed := &countingConsumed{ConsumedRepository: d.store.Consumed()}
	d.useRepos(t, consumed, d.store.History())
	hash := domain.MustParseTxHash(txHash(1))

	_, err := srv.store.Consumption().MarkConsumed(ctx, storage.Mark{TxHash: hash, Amount: "10", ClaimID: "elsewhere", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("seed server: %v", err)
	}
	// The pre-check misses the mark, so the claim itself is rejected.
	d.remote.staleCheck.Store(true)

	if _, err := d.verifier.Begin(ctx, amount(t, "10"), buyer, shop); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ch.setLogs(transferLog(txHash(1), buyer, shop, amount(t, "10").BaseUnits()))

	out, err := d.verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Kind != OutcomeAlreadyConsumed {
		t.Fatalf("expected already consumed, got %s", out.Kind)
	}
	if n := consumed.puts.Load(); n != 2 {
		t.Errorf("expected local claim plus one foreign mark, got %d writes", n)
	}
	rec, err := d.store.Consumed().Get(ctx, hash)
	if err != nil || rec.ClaimID != "" || !rec.Acknowledged {
		t.Errorf("expected foreign mark, got %+v %v", rec, err)
	}
}
