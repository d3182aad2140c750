package payment

import (
	"context"
	"fmt"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/payverify/internal/api"
	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/chain/evm"
	"github.com/vietddude/payverify/internal/infra/remote"
	"github.com/vietddude/payverify/internal/infra/storage"
	"github.com/vietddude/payverify/internal/infra/storage/memory"
)

var (
	token = domain.MustParseAddress("0x55d398326f99059ff775485246999027b3197955")
	buyer = domain.MustParseAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	shop  = domain.MustParseAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func amount(t *testing.T, s string) domain.TokenAmount {
	t.Helper()
	a, err := domain.ParseTokenAmount(s, 18)
	if err != nil {
		t.Fatalf("parse amount %q: %v", s, err)
	}
	return a
}

func transferLog(hash string, from, to domain.Address, value *big.Int) map[string]any {
	return map[string]any{
		"address":          token.String(),
		"topics":           []any{evm.TransferEventTopic.Hex(), from.Topic().Hex(), to.Topic().Hex()},
		"data":             fmt.Sprintf("0x%064x", value),
		"blockNumber":      "0x3e8",
		"transactionHash":  hash,
		"transactionIndex": "0x0",
		"blockHash":        "0x" + strings.Repeat("ab", 32),
		"logIndex":         "0x0",
		"removed":          false,
	}
}

// stubChain answers the JSON-RPC calls the evm ledger makes.
type stubChain struct {
	mu      sync.Mutex
	logs    []any
	getLogs atomic.Int32

	// When set, eth_getLogs signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (c *stubChain) setLogs(logs ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = logs
}

func (c *stubChain) Call(ctx context.Context, method string, params []any) (any, error) {
	switch method {
	case "eth_blockNumber":
		return "0x2710", nil
	case "eth_getLogs":
		c.getLogs.Add(1)
		if c.entered != nil {
			select {
			case c.entered <- struct{}{}:
			default:
			}
			<-c.release
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return append([]any(nil), c.logs...), nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

// flakyRemote is a remote client whose calls can be made to fail.
type flakyRemote struct {
	*remote.Client
	down       atomic.Bool // every call fails
	marksDown  atomic.Bool // only MarkConsumed fails
	staleCheck atomic.Bool // IsConsumed always answers false

	afterMark    func()        // runs after an accepted MarkConsumed
	pendingDelay time.Duration // holds back pushes of pending records
}

func (f *flakyRemote) fail(op string) error {
	return fmt.Errorf("%w: %s: connection refused", domain.ErrRemoteUnreachable, op)
}

func (f *flakyRemote) MarkConsumed(ctx context.Context, hash domain.TxHash, amount string, at time.Time, claimID string) error {
	if f.down.Load() || f.marksDown.Load() {
		return f.fail("mark_consumed")
	}
	err := f.Client.MarkConsumed(ctx, hash, amount, at, claimID)
	if err == nil && f.afterMark != nil {
		f.afterMark()
	}
	return err
}

func (f *flakyRemote) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	if f.down.Load() {
		return false, f.fail("is_consumed")
	}
	if f.staleCheck.Load() {
		return false, nil
	}
	return f.Client.IsConsumed(ctx, hash)
}

func (f *flakyRemote) SaveTransfer(ctx context.Context, rec domain.TransferRecord) error {
	if f.down.Load() {
		return f.fail("save")
	}
	if f.pendingDelay > 0 && !rec.Settlement.Final() {
		time.Sleep(f.pendingDelay)
	}
	return f.Client.SaveTransfer(ctx, rec)
}

func (f *flakyRemote) History(ctx context.Context) ([]domain.TransferRecord, error) {
	if f.down.Load() {
		return nil, f.fail("history")
	}
	return f.Client.History(ctx)
}

// testServer runs the remote API over in-memory storage.
type testServer struct {
	store *memory.ServerStorage
	url   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewServerStorage()
	tokens := map[string]string{}
	for i := 0; i < 16; i++ {
		tokens[fmt.Sprintf("token-%d", i)] = fmt.Sprintf("account-%d", i)
	}
	srv := httptest.NewServer(api.SetupRouter(api.NewHandler(store), tokens))
	t.Cleanup(srv.Close)
	return &testServer{store: store, url: srv.URL}
}

// device is one client installation: its own local store, shared chain and server.
type device struct {
	store       *memory.DeviceStorage
	ledger      *evm.Ledger
	remote      *flakyRemote
	pending     *PendingStore
	consumption *ConsumptionLedger
	history     *HistoryStore
	verifier    *Verifier
}

func newDevice(t *testing.T, srv *testServer, n int, chain *stubChain) *device {
	t.Helper()
	store := memory.NewDeviceStorage()
	rc := &flakyRemote{Client: remote.NewClient(remote.Config{
		BaseURL:    srv.url,
		Token:      fmt.Sprintf("token-%d", n),
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})}

	ledger := evm.NewLedger(evm.Config{ChainID: "test", TokenContract: token, TokenDecimals: 18, HeadTTL: time.Millisecond}, chain)
	d := &device{
		store:       store,
		ledger:      ledger,
		remote:      rc,
		pending:     NewPendingStore(store.Pending()),
		consumption: NewConsumptionLedger(store.Consumed(), rc),
		history:     NewHistoryStore(store.History(), rc, 10),
	}
	d.verifier = NewVerifier(ledger, d.pending, d.consumption, d.history)
	t.Cleanup(d.history.Flush)
	return d
}

// useRepos swaps the device's consumed and history repositories and
// rebuilds the services on top of them.
func (d *device) useRepos(t *testing.T, consumed storage.ConsumedRepository, history storage.HistoryRepository) {
	t.Helper()
	d.consumption = NewConsumptionLedger(consumed, d.remote)
	d.history = NewHistoryStore(history, d.remote, 10)
	d.verifier = NewVerifier(d.ledger, d.pending, d.consumption, d.history)
	t.Cleanup(d.history.Flush)
}

// failingHistory fails Prepend of a completed record the first `fails` times,
// and any Prepend called with an ended context.
type failingHistory struct {
	storage.HistoryRepository
	fails atomic.Int32
}

func (r *failingHistory) Prepend(ctx context.Context, rec domain.TransferRecord, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Settlement.Status() == domain.TransferStatusCompleted && r.fails.Add(-1) >= 0 {
		return fmt.Errorf("disk full")
	}
	return r.HistoryRepository.Prepend(ctx, rec, limit)
}

// countingConsumed counts Put calls.
type countingConsumed struct {
	storage.ConsumedRepository
	puts atomic.Int32
}

func (r *countingConsumed) Put(ctx context.Context, rec domain.ConsumedTransaction) error {
	r.puts.Add(1)
	return r.ConsumedRepository.Put(ctx, rec)
}
