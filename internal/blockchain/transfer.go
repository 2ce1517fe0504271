package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Transfer sends amount tokens from the operator wallet to the wallet at to.
// The recipient's associated token account is created in the same transaction when missing.
func (l *TokenLedger) Transfer(ctx context.Context, amount decimal.Decimal, from, to string) (string, error) {
	authority := l.operator.PublicKey()
	if from != authority.String() {
		return "", fmt.Errorf("cannot sign for source wallet %s", from)
	}
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid destination: %w", err)
	}
	units, err := ToBaseUnits(amount, l.decimals)
	if err != nil {
		return "", err
	}

	source, _, err := solana.FindAssociatedTokenAddress(authority, l.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive source token account: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(recipient, l.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive destination token account: %w", err)
	}

	var instructions []solana.Instruction
	exists, err := l.accountExists(ctx, destination)
	if err != nil {
		return "", err
	}
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(authority, recipient, l.mint).Build())
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		units,
		l.decimals,
		source,
		l.mint,
		destination,
		authority,
		[]solana.PublicKey{},
	).Build())

	recent, err := l.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(authority),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authority) {
			return &l.operator
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := l.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       l.skipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"signature":   sig.String(),
		"recipient":   to,
		"amount":      amount.String(),
		"created_ata": !exists,
	}).Info("[Ledger] Transfer sent")
	return sig.String(), nil
}

func (l *TokenLedger) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := l.rpcClient.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up token account %s: %w", account, err)
	}
	return info != nil && info.Value != nil, nil
}
