package token_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"bountyboard/internal/db"
	"bountyboard/internal/domain"
	"bountyboard/internal/migrate"
	"bountyboard/internal/token"
)

func newLedger(t *testing.T) (*token.Ledger, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return token.New(conn), conn
}

func inTx(t *testing.T, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return nil
}

func TestTransferMovesFunds(t *testing.T) {
	ledger, conn := newLedger(t)
	ctx := context.Background()
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Mint(ctx, tx, "USDx", "issuer", "alice", 500)
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bounty := int64(7)
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Transfer(ctx, tx, "USDx", "alice", "vault", 200, domain.TransferEscrowLock, &bounty)
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got, _ := ledger.Balance(ctx, "alice", "USDx"); got != 300 {
		t.Fatalf("alice = %d, want 300", got)
	}
	if got, _ := ledger.Balance(ctx, "vault", "USDx"); got != 200 {
		t.Fatalf("vault = %d, want 200", got)
	}

	transfers, err := ledger.Transfers(ctx, bounty)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Kind != domain.TransferEscrowLock || transfers[0].Amount != 200 {
		t.Fatalf("journal = %+v", transfers)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	ledger, conn := newLedger(t)
	ctx := context.Background()
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Mint(ctx, tx, "USDx", "issuer", "alice", 50)
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Transfer(ctx, tx, "USDx", "alice", "vault", 100, domain.TransferEscrowLock, nil)
	})
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// Rolled back, untouched.
	if got, _ := ledger.Balance(ctx, "alice", "USDx"); got != 50 {
		t.Fatalf("alice = %d, want 50", got)
	}
	if got, _ := ledger.Balance(ctx, "vault", "USDx"); got != 0 {
		t.Fatalf("vault = %d, want 0", got)
	}
}

func TestTransferRejectsBadAmounts(t *testing.T) {
	ledger, conn := newLedger(t)
	ctx := context.Background()
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Transfer(ctx, tx, "USDx", "alice", "vault", 0, domain.TransferEscrowLock, nil)
	}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Transfer(ctx, tx, "USDx", "alice", "alice", 10, domain.TransferEscrowLock, nil)
	}); err == nil {
		t.Fatalf("expected error for self transfer")
	}
}

func TestBalancesSkipsZero(t *testing.T) {
	ledger, conn := newLedger(t)
	ctx := context.Background()
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		if err := ledger.Mint(ctx, tx, "USDx", "issuer", "alice", 100); err != nil {
			return err
		}
		return ledger.Mint(ctx, tx, "EURx", "issuer", "alice", 30)
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := inTx(t, conn, func(tx *sql.Tx) error {
		return ledger.Transfer(ctx, tx, "EURx", "alice", "bob", 30, domain.TransferEscrowRelease, nil)
	}); err != nil {
		t.Fatalf("transfer all: %v", err)
	}
	balances, err := ledger.Balances(ctx, "alice")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Asset != "USDx" || balances[0].Amount != 100 {
		t.Fatalf("balances = %+v", balances)
	}
}
