package blockchain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

// DiagnosticResult holds the result of a settlement network check
type DiagnosticResult struct {
	RPCConnected    bool   `json:"rpc_connected"`
	RPCURL          string `json:"rpc_url"`
	RPCError        string `json:"rpc_error,omitempty"`
	LatestBlockhash string `json:"latest_blockhash,omitempty"`
	Operator        string `json:"operator"`
	Mint            string `json:"mint"`
	OperatorBalance string `json:"operator_balance,omitempty"`
	BalanceError    string `json:"balance_error,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// RunDiagnostics checks RPC connectivity and the operator's token float
func (l *TokenLedger) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		RPCURL:    l.rpcURL,
		Operator:  l.OperatorAddress(),
		Mint:      l.mint.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	blockhash, err := l.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		result.RPCError = err.Error()
		log.WithError(err).Warn("[Diagnostics] RPC unreachable")
		return result
	}
	result.RPCConnected = true
	result.LatestBlockhash = blockhash.Value.Blockhash.String()

	balance, err := l.TokenBalance(ctx, result.Operator)
	if err != nil {
		result.BalanceError = err.Error()
		log.WithError(err).Warn("[Diagnostics] Failed to read operator balance")
		return result
	}
	result.OperatorBalance = balance.String()
	return result
}
