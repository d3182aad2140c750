package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/chain"
	"github.com/vietddude/payverify/internal/metrics"
)

const (
	DefaultLookbackBlocks = 5000
	DefaultHeadTTL        = 3 * time.Second

	nativeDecimals int32 = 18
)

// Caller is the JSON-RPC surface the ledger needs. *rpc.Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (any, error)
}

// Config holds per-chain ledger settings.
type Config struct {
	ChainID        string
	TokenContract  domain.Address
	TokenDecimals  int32
	LookbackBlocks uint64
	HeadTTL        time.Duration
}

// Ledger implements chain.Ledger for an ERC-20 token on an EVM chain.
type Ledger struct {
	cfg    Config
	client Caller
	head   *HeadCache
	log    *slog.Logger
}

var _ chain.Ledger = (*Ledger)(nil)

// NewLedger creates an EVM ledger client.
func NewLedger(cfg Config, client Caller) *Ledger {
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = domain.DefaultDecimals
	}
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = DefaultLookbackBlocks
	}
	if cfg.HeadTTL == 0 {
		cfg.HeadTTL = DefaultHeadTTL
	}
	l := &Ledger{
		cfg:    cfg,
		client: client,
		log:    slog.With("component", "ledger", "chain", cfg.ChainID),
	}
	l.head = NewHeadCache(l.fetchLatestBlock, cfg.HeadTTL)
	return l
}

// LatestBlock returns the chain head height.
func (l *Ledger) LatestBlock(ctx context.Context) (uint64, error) {
	return l.head.Get(ctx)
}

func (l *Ledger) fetchLatestBlock(ctx context.Context) (uint64, error) {
	result, err := l.client.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	blockHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("%w: invalid block number response", domain.ErrRPCUnavailable)
	}

	head, err := parseHexString(blockHex)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrRPCUnavailable, err)
	}
	metrics.ChainLatestBlock.WithLabelValues(l.cfg.ChainID).Set(float64(head))
	return head, nil
}

// TokenBalance returns the ERC-20 balance of owner.
func (l *Ledger) TokenBalance(ctx context.Context, owner domain.Address) (domain.TokenAmount, error) {
	if owner.IsZero() {
		return domain.TokenAmount{}, domain.ErrInvalidAddress
	}

	data, err := erc20ABI.Pack("balanceOf", owner.Common())
	if err != nil {
		return domain.TokenAmount{}, fmt.Errorf("pack balanceOf: %w", err)
	}

	call := map[string]any{
		"to":   l.cfg.TokenContract.String(),
		"data": "0x" + common.Bytes2Hex(data),
	}
	result, err := l.client.Call(ctx, "eth_call", []any{call, "latest"})
	if err != nil {
		return domain.TokenAmount{}, fmt.Errorf("eth_call balanceOf failed: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return domain.TokenAmount{}, fmt.Errorf("%w: invalid eth_call response", domain.ErrRPCUnavailable)
	}

	out, err := erc20ABI.Unpack("balanceOf", common.FromHex(raw))
	if err != nil || len(out) != 1 {
		return domain.TokenAmount{}, fmt.Errorf("%w: decode balanceOf: %v", domain.ErrRPCUnavailable, err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return domain.TokenAmount{}, fmt.Errorf("%w: unexpected balanceOf type %T", domain.ErrRPCUnavailable, out[0])
	}

	return domain.AmountFromBaseUnits(balance, l.cfg.TokenDecimals), nil
}

// NativeBalance returns the native coin balance of owner.
func (l *Ledger) NativeBalance(ctx context.Context, owner domain.Address) (domain.TokenAmount, error) {
	if owner.IsZero() {
		return domain.TokenAmount{}, domain.ErrInvalidAddress
	}

	result, err := l.client.Call(ctx, "eth_getBalance", []any{owner.String(), "latest"})
	if err != nil {
		return domain.TokenAmount{}, fmt.Errorf("eth_getBalance failed: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return domain.TokenAmount{}, fmt.Errorf("%w: invalid eth_getBalance response", domain.ErrRPCUnavailable)
	}
	wei, err := parseHexToBigInt(raw)
	if err != nil {
		return domain.TokenAmount{}, fmt.Errorf("%w: %w", domain.ErrRPCUnavailable, err)
	}

	return domain.AmountFromBaseUnits(wei, nativeDecimals), nil
}

// FindMatchingTransfer scans Transfer events to req.To within the lookback
// window and returns the first one from req.From whose amount is within 1% of
// req.Amount and whose hash is not excluded.
func (l *Ledger) FindMatchingTransfer(ctx context.Context, req chain.MatchRequest) (chain.Match, error) {
	if req.From.IsZero() || req.To.IsZero() {
		return chain.Match{}, domain.ErrInvalidAddress
	}

	head, err := l.LatestBlock(ctx)
	if err != nil {
		return chain.Match{}, err
	}

	fromBlock := uint64(0)
	if head > l.cfg.LookbackBlocks {
		fromBlock = head - l.cfg.LookbackBlocks
	}

	logs, err := l.getTransferLogs(ctx, req.To, fromBlock, head)
	if err != nil {
		// The next attempt may land on another provider.
		l.head.Invalidate()
		return chain.Match{}, err
	}

	match := matchTransfer(logs, req, l.cfg.LookbackBlocks)
	l.log.Debug("Transfer search finished",
		"from_block", fromBlock,
		"to_block", head,
		"logs", len(logs),
		"found", match.Found,
		"reason", match.Reason.String(),
	)
	return match, nil
}

// EncodeTransfer builds transfer(address,uint256) calldata and an EIP-681 URI.
func (l *Ledger) EncodeTransfer(to domain.Address, amount domain.TokenAmount) (chain.TransferPayload, error) {
	if to.IsZero() {
		return chain.TransferPayload{}, domain.ErrInvalidAddress
	}
	if amount.Decimals() != l.cfg.TokenDecimals {
		return chain.TransferPayload{}, fmt.Errorf("%w: amount has %d decimals, token has %d",
			domain.ErrInvalidAmount, amount.Decimals(), l.cfg.TokenDecimals)
	}

	units := amount.BaseUnits()
	data, err := erc20ABI.Pack("transfer", to.Common(), units)
	if err != nil {
		return chain.TransferPayload{}, fmt.Errorf("pack transfer: %w", err)
	}

	uri := fmt.Sprintf("ethereum:%s", l.cfg.TokenContract.String())
	if l.cfg.ChainID != "" {
		uri += "@" + l.cfg.ChainID
	}
	uri += fmt.Sprintf("/transfer?address=%s&uint256=%s", to.String(), units.String())

	return chain.TransferPayload{
		Contract: l.cfg.TokenContract,
		To:       to,
		Amount:   amount,
		Data:     data,
		URI:      uri,
	}, nil
}

// getTransferLogs asks for Transfer events to recipient only. The sender is
// filtered in matchTransfer.
func (l *Ledger) getTransferLogs(ctx context.Context, recipient domain.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	filter := map[string]any{
		"address":   l.cfg.TokenContract.String(),
		"fromBlock": fmt.Sprintf("0x%x", fromBlock),
		"toBlock":   fmt.Sprintf("0x%x", toBlock),
		"topics": []any{
			TransferEventTopic.Hex(),
			nil,
			recipient.Topic().Hex(),
		},
	}

	result, err := l.client.Call(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	rawLogs, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: invalid eth_getLogs response", domain.ErrRPCUnavailable)
	}

	logs := make([]types.Log, 0, len(rawLogs))
	for i, raw := range rawLogs {
		lg, err := decodeLog(raw)
		if err != nil {
			l.log.Debug("Skipping malformed log", "index", i, "error", err)
			continue
		}
		logs = append(logs, lg)
	}
	return logs, nil
}

func decodeLog(raw any) (types.Log, error) {
	var lg types.Log
	b, err := json.Marshal(raw)
	if err != nil {
		return lg, err
	}
	if err := json.Unmarshal(b, &lg); err != nil {
		return lg, err
	}
	return lg, nil
}

func parseHexToBigInt(hexStr string) (*big.Int, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(hexStr, "0x"), 16); !ok {
		return nil, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return n, nil
}

func parseHexString(hexStr string) (uint64, error) {
	n, err := parseHexToBigInt(hexStr)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("hex out of range: %s", hexStr)
	}
	return n.Uint64(), nil
}
