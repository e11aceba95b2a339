// Package token is a single-node token ledger backed by the same SQLite
// database as the rest of the board. Balances are integer amounts per
// (account, asset) pair and every movement leaves a journal row, so the
// sum over all accounts of an asset only changes through Mint.
package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bountyboard/internal/domain"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type Ledger struct {
	DB  *sql.DB
	Now func() time.Time
}

func New(db *sql.DB) *Ledger {
	return &Ledger{DB: db, Now: time.Now}
}

func (l *Ledger) now() string {
	return l.Now().UTC().Format(time.RFC3339)
}

// Transfer moves amount of asset from one account to another inside the
// caller's transaction. The debit and the journal row commit or roll back
// together with whatever else the transaction carries. Returns
// ErrInsufficientFunds when the source balance cannot cover the amount.
func (l *Ledger) Transfer(ctx context.Context, tx *sql.Tx, asset, from, to string, amount int64, kind string, bountyID *int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if from == to {
		return fmt.Errorf("from and to must differ")
	}
	res, err := tx.ExecContext(ctx, `UPDATE balances SET amount=amount-? WHERE account=? AND asset=? AND amount>=?`,
		amount, from, asset, amount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientFunds
	}
	if err := l.credit(ctx, tx, asset, to, amount); err != nil {
		return err
	}
	return l.journal(ctx, tx, asset, from, to, amount, kind, bountyID)
}

// Mint credits freshly issued tokens to an account. Useful for seeding
// test and development ledgers; the journal records the issuer account
// as the source.
func (l *Ledger) Mint(ctx context.Context, tx *sql.Tx, asset, issuer, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if err := l.credit(ctx, tx, asset, to, amount); err != nil {
		return err
	}
	return l.journal(ctx, tx, asset, issuer, to, amount, domain.TransferMint, nil)
}

func (l *Ledger) credit(ctx context.Context, tx *sql.Tx, asset, account string, amount int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO balances(account,asset,amount) VALUES (?,?,?)
ON CONFLICT(account,asset) DO UPDATE SET amount=amount+excluded.amount`, account, asset, amount)
	return err
}

func (l *Ledger) journal(ctx context.Context, tx *sql.Tx, asset, from, to string, amount int64, kind string, bountyID *int64) error {
	var bid any
	if bountyID != nil {
		bid = *bountyID
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO token_transfers(asset,from_account,to_account,amount,kind,bounty_id,ts) VALUES (?,?,?,?,?,?,?)`,
		asset, from, to, amount, kind, bid, l.now())
	return err
}

// Balance returns the amount held by an account for one asset. Accounts
// with no row hold zero.
func (l *Ledger) Balance(ctx context.Context, account, asset string) (int64, error) {
	var amount int64
	err := l.DB.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account=? AND asset=?`, account, asset).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// Balances returns all non-zero holdings of an account.
func (l *Ledger) Balances(ctx context.Context, account string) ([]domain.Balance, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT account,asset,amount FROM balances WHERE account=? AND amount!=0 ORDER BY asset ASC`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Balance{}
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.Account, &b.Asset, &b.Amount); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// Transfers returns the journal entries touching a bounty, oldest first.
func (l *Ledger) Transfers(ctx context.Context, bountyID int64) ([]domain.TokenTransfer, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT id,asset,from_account,to_account,amount,kind,bounty_id,ts FROM token_transfers WHERE bounty_id=? ORDER BY id ASC`, bountyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TokenTransfer{}
	for rows.Next() {
		var t domain.TokenTransfer
		var bid sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Asset, &t.From, &t.To, &t.Amount, &t.Kind, &bid, &t.TS); err != nil {
			return nil, err
		}
		if bid.Valid {
			t.BountyID = &bid.Int64
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
