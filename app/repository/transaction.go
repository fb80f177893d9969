package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

const transactionColumns = `
	id, merchant_id, amount, currency, status,
	amount_captured, amount_refunded, payment_method_type,
	customer_ref, description, gateway_reference_id,
	idempotency_key, failure_reason, metadata_json,
	created_at, updated_at
`

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	metadataJSON, err := serializeMetadata(txn.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		txn.ID,
		txn.MerchantID,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.AmountCaptured,
		txn.AmountRefunded,
		txn.PaymentMethodType,
		nullableStringValue(txn.CustomerRef),
		nullableStringValue(txn.Description),
		nullableStringValue(txn.GatewayReferenceID),
		nullableStringValue(txn.IdempotencyKey),
		nullableStringValue(txn.FailureReason),
		metadataJSON,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) Update(ctx context.Context, txn *entity.Transaction) error {
	metadataJSON, err := serializeMetadata(txn.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE transactions SET
			status = ?,
			amount_captured = ?,
			amount_refunded = ?,
			gateway_reference_id = ?,
			failure_reason = ?,
			metadata_json = ?,
			updated_at = ?
		WHERE id = ? AND merchant_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		txn.Status,
		txn.AmountCaptured,
		txn.AmountRefunded,
		nullableStringValue(txn.GatewayReferenceID),
		nullableStringValue(txn.FailureReason),
		metadataJSON,
		txn.UpdatedAt,
		txn.ID,
		txn.MerchantID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, merchantID, id string) (*entity.Transaction, error) {
	return r.findOne(ctx, merchantID, id, false)
}

// FindByIDForUpdate takes a row-level lock on the transaction so that
// concurrent capture/refund guards never evaluate against stale
// counters. Only meaningful inside Atomic.
func (r *TransactionRepository) FindByIDForUpdate(ctx context.Context, merchantID, id string) (*entity.Transaction, error) {
	return r.findOne(ctx, merchantID, id, true)
}

func (r *TransactionRepository) findOne(ctx context.Context, merchantID, id string, forUpdate bool) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE merchant_id = ? AND id = ?`
	if forUpdate {
		query += " FOR UPDATE"
	}

	txn := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, merchantID, id), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if strings.TrimSpace(filter.MerchantID) != "" {
		conditions = append(conditions, "merchant_id = ?")
		args = append(args, filter.MerchantID)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		transactions = append(transactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(scan rowScanner, txn *entity.Transaction) error {
	var customerRef sql.NullString
	var description sql.NullString
	var gatewayReferenceID sql.NullString
	var idempotencyKey sql.NullString
	var failureReason sql.NullString
	var metadataJSON string

	err := scan.Scan(
		&txn.ID,
		&txn.MerchantID,
		&txn.Amount,
		&txn.Currency,
		&txn.Status,
		&txn.AmountCaptured,
		&txn.AmountRefunded,
		&txn.PaymentMethodType,
		&customerRef,
		&description,
		&gatewayReferenceID,
		&idempotencyKey,
		&failureReason,
		&metadataJSON,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	txn.CustomerRef = stringPtrFromNull(customerRef)
	txn.Description = stringPtrFromNull(description)
	txn.GatewayReferenceID = stringPtrFromNull(gatewayReferenceID)
	txn.IdempotencyKey = stringPtrFromNull(idempotencyKey)
	txn.FailureReason = stringPtrFromNull(failureReason)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	txn.Metadata = metadata

	return nil
}
