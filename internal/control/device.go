// Package control wires configuration into the running device and server.
package control

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/payverify/internal/core/config"
	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/chain"
	"github.com/vietddude/payverify/internal/infra/chain/evm"
	"github.com/vietddude/payverify/internal/infra/remote"
	"github.com/vietddude/payverify/internal/infra/rpc"
	"github.com/vietddude/payverify/internal/infra/storage/bolt"
	"github.com/vietddude/payverify/internal/payment"
)

// Device is one client installation: local store, ledger access and the
// payment services built on them.
type Device struct {
	Recipient     domain.Address
	Ledger        chain.Ledger
	Pending       *payment.PendingStore
	Consumption   *payment.ConsumptionLedger
	History       *payment.HistoryStore
	Verifier      *payment.Verifier
	TokenDecimals int32
	TokenSymbol   string

	rpc   *rpc.Client
	local *bolt.Store
	log   *slog.Logger
}

// NewDevice opens the local store and connects the ledger and remote clients.
func NewDevice(cfg *config.AppConfig) (*Device, error) {
	if err := cfg.ValidateDevice(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	token := domain.MustParseAddress(cfg.Chain.TokenContract)
	recipient := domain.MustParseAddress(cfg.Chain.StoreAddress)

	local, err := bolt.Open(cfg.Device.DataFile)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	chainID := cfg.Chain.ID
	if chainID == "" {
		chainID = cfg.Chain.Name
	}

	endpoints := make([]rpc.Endpoint, 0, len(cfg.Chain.Providers))
	for _, p := range cfg.Chain.Providers {
		endpoints = append(endpoints, rpc.Endpoint{Name: p.Name, URL: p.URL})
	}
	client := rpc.Dial(chainID, endpoints, cfg.Chain.Timeout, cfg.Chain.MaxRetries)

	ledger := evm.NewLedger(evm.Config{
		ChainID:        chainID,
		TokenContract:  token,
		TokenDecimals:  cfg.Chain.TokenDecimals,
		LookbackBlocks: cfg.Chain.LookbackBlocks,
	}, client)

	rc := remote.NewClient(remote.Config{
		BaseURL:    cfg.Remote.BaseURL,
		Token:      cfg.Remote.Token,
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
	})

	d := &Device{
		Recipient:     recipient,
		Ledger:        ledger,
		Pending:       payment.NewPendingStore(local.Pending()),
		Consumption:   payment.NewConsumptionLedger(local.Consumed(), rc),
		History:       payment.NewHistoryStore(local.History(), rc, cfg.Device.HistoryLimit),
		TokenDecimals: cfg.Chain.TokenDecimals,
		TokenSymbol:   cfg.Chain.TokenSymbol,
		rpc:           client,
		local:         local,
		log:           slog.With("component", "device"),
	}
	d.Verifier = payment.NewVerifier(ledger, d.Pending, d.Consumption, d.History)

	d.log.Debug("Device ready", "chain", chainID, "providers", len(endpoints), "data_file", cfg.Device.DataFile)
	return d, nil
}

// Close waits for history pushes and releases the local store.
func (d *Device) Close() error {
	d.History.Flush()
	_ = d.rpc.Close()
	return d.local.Close()
}
