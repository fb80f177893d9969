package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

type TransactionEventRepository struct {
	db DBTX
}

func NewTransactionEventRepository(db DBTX) *TransactionEventRepository {
	return &TransactionEventRepository{db: db}
}

func (r *TransactionEventRepository) Create(ctx context.Context, event *entity.TransactionEvent) error {
	query := `
		INSERT INTO transaction_events (
			transaction_id, event_type, old_status, new_status,
			amount_captured_before, amount_captured_after,
			amount_refunded_before, amount_refunded_after,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.TransactionID,
		event.EventType,
		nullableStringValue(event.OldStatus),
		event.NewStatus,
		event.AmountCapturedBefore,
		event.AmountCapturedAfter,
		event.AmountRefundedBefore,
		event.AmountRefundedAfter,
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

func (r *TransactionEventRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error) {
	query := `
		SELECT id, transaction_id, event_type, old_status, new_status,
			amount_captured_before, amount_captured_after,
			amount_refunded_before, amount_refunded_after,
			created_at
		FROM transaction_events
		WHERE transaction_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.TransactionEvent, 0)
	for rows.Next() {
		event := &entity.TransactionEvent{}
		var oldStatus sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.TransactionID,
			&event.EventType,
			&oldStatus,
			&event.NewStatus,
			&event.AmountCapturedBefore,
			&event.AmountCapturedAfter,
			&event.AmountRefundedBefore,
			&event.AmountRefundedAfter,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		event.OldStatus = stringPtrFromNull(oldStatus)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
