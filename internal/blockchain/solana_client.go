package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// RPC is the subset of the Solana JSON-RPC API used to settle transfers
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// TokenLedger settles reward transfers as SPL token transfers signed by the operator wallet
type TokenLedger struct {
	rpcClient     RPC
	rpcURL        string
	mint          solana.PublicKey
	decimals      uint8
	operator      solana.PrivateKey
	skipPreflight bool
}

// LedgerOptions configures a TokenLedger
type LedgerOptions struct {
	Network            string
	RPCURL             string
	TokenMintAddress   string
	TokenDecimals      uint8
	OperatorPrivateKey string
	SkipPreflight      bool
}

// EndpointFor returns the RPC URL of a cluster name, preferring an explicit override
func EndpointFor(network, override string) string {
	if override != "" {
		return override
	}
	switch network {
	case "mainnet-beta":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "localnet":
		return rpc.LocalNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

// NewTokenLedger connects to the configured cluster
func NewTokenLedger(opts LedgerOptions) (*TokenLedger, error) {
	url := EndpointFor(opts.Network, opts.RPCURL)
	return NewTokenLedgerWithRPC(rpc.New(url), url, opts)
}

// NewTokenLedgerWithRPC builds a ledger on an existing RPC client
func NewTokenLedgerWithRPC(client RPC, url string, opts LedgerOptions) (*TokenLedger, error) {
	if opts.TokenMintAddress == "" {
		return nil, errors.New("token mint address not configured")
	}
	mint, err := solana.PublicKeyFromBase58(opts.TokenMintAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}
	if opts.OperatorPrivateKey == "" {
		return nil, errors.New("operator private key not configured")
	}
	operator, err := solana.PrivateKeyFromBase58(opts.OperatorPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}

	log.WithFields(log.Fields{
		"rpc":      url,
		"mint":     mint.String(),
		"operator": operator.PublicKey().String(),
	}).Info("Settlement ledger ready")

	return &TokenLedger{
		rpcClient:     client,
		rpcURL:        url,
		mint:          mint,
		decimals:      opts.TokenDecimals,
		operator:      operator,
		skipPreflight: opts.SkipPreflight,
	}, nil
}

// OperatorAddress is the wallet transfers are paid from
func (l *TokenLedger) OperatorAddress() string {
	return l.operator.PublicKey().String()
}

// ValidateAddress checks a Solana wallet address format
func (l *TokenLedger) ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid Solana address %q: %w", address, err)
	}
	return nil
}

// ToBaseUnits converts a token amount into the mint's smallest unit
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds %d decimals", amount, decimals)
	}
	units := shifted.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("amount %s is out of range", amount)
	}
	return units.Uint64(), nil
}

// TokenBalance returns the token balance held by owner
func (l *TokenLedger) TokenBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid owner address: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, l.mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive token account: %w", err)
	}

	resp, err := l.rpcClient.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if errors.Is(err, rpc.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get token balance: %w", err)
	}
	if resp == nil || resp.Value == nil {
		return decimal.Zero, nil
	}
	units, err := decimal.NewFromString(resp.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unexpected token amount %q: %w", resp.Value.Amount, err)
	}
	return units.Shift(-int32(resp.Value.Decimals)), nil
}
