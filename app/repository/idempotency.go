package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

var ErrIdempotencyRecordExists = errors.New("idempotency record already exists")

type IdempotencyRepository struct {
	db DBTX
}

func NewIdempotencyRepository(db DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Find(ctx context.Context, merchantID, key string) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT id, idempotency_key, merchant_id, request_hash,
			response_status_code, response_body, transaction_id,
			created_at, expires_at
		FROM idempotency_records
		WHERE merchant_id = ? AND idempotency_key = ?
		LIMIT 1
	`

	record := &entity.IdempotencyRecord{}
	var transactionID sql.NullString
	err := r.db.QueryRowContext(ctx, query, merchantID, key).Scan(
		&record.ID,
		&record.Key,
		&record.MerchantID,
		&record.RequestHash,
		&record.ResponseStatusCode,
		&record.ResponseBody,
		&transactionID,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record.TransactionID = stringPtrFromNull(transactionID)
	return record, nil
}

func (r *IdempotencyRepository) Create(ctx context.Context, record *entity.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (
			idempotency_key, merchant_id, request_hash,
			response_status_code, response_body, transaction_id,
			created_at, expires_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.Key,
		record.MerchantID,
		record.RequestHash,
		record.ResponseStatusCode,
		record.ResponseBody,
		nullableStringValue(record.TransactionID),
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrIdempotencyRecordExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = uint64(id)
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time, limit int32) (int64, error) {
	query := `DELETE FROM idempotency_records WHERE expires_at <= ? LIMIT ?`

	result, err := r.db.ExecContext(ctx, query, now, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
