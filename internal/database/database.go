package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"pairchat/internal/constants"
	"pairchat/internal/migrations"
	"pairchat/internal/models"
	"pairchat/internal/security"
	"pairchat/pkg/circuitbreaker"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store is the durable message store: per-identity append-only history and
// per-identity pending queue, both backed by sqlite. Every mutating
// operation is flushed before it returns.
type Store struct {
	db        *sql.DB
	encryptor *encryptor
	breaker   *circuitbreaker.CircuitBreaker
	logger    *logrus.Logger
}

func New(dbPath string, logger *logrus.Logger) (*Store, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	db, err := open(dbPath)
	if err != nil {
		// A corrupt store file is treated as empty rather than fatal: move it
		// aside and start over so the relay can still come up.
		logger.WithError(err).WithField("path", dbPath).
			Warn("Store file unusable, moving aside and starting empty")

		aside := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
		if renameErr := os.Rename(dbPath, aside); renameErr != nil {
			return nil, fmt.Errorf("failed to move corrupt store aside: %v (open error: %w)", renameErr, err)
		}

		db, err = open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to recreate store: %w", err)
		}
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	breaker := circuitbreaker.NewWithLogger("message-store",
		constants.StoreBreakerMaxFailures,
		time.Duration(constants.StoreBreakerResetTimeoutSec)*time.Second,
		logger)

	return &Store{db: db, encryptor: encryptor, breaker: breaker, logger: logger}, nil
}

// guarded runs a store mutation through the circuit breaker and the retry
// logic. An open breaker rejects the call immediately instead of burning
// retry backoff on every event while the store is known bad.
func (s *Store) guarded(ctx context.Context, operationName string, op func() error) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return retryableDBOperation(ctx, op, operationName)
	})
}

func open(dbPath string) (*sql.DB, error) {
	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records the message in the history of both its sender and its
// recipient. Both rows are written in one transaction so a crash after
// return loses the write for neither party. Re-appending the same message
// is a no-op per owner.
func (s *Store) Append(ctx context.Context, msg *models.Message) error {
	payload, err := s.encodePayload(msg.Payload)
	if err != nil {
		return err
	}

	return s.guarded(ctx, "append message", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, owner := range []string{msg.From, msg.To} {
			if _, err := tx.ExecContext(ctx, InsertHistoryQuery,
				owner, msg.ID, msg.From, msg.To, payload, msg.CreatedAt); err != nil {
				return fmt.Errorf("failed to append history for %s: %w", owner, err)
			}
		}

		return tx.Commit()
	})
}

// History returns the ordered, non-deleted messages owned by the identity.
func (s *Store) History(ctx context.Context, owner string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, SelectHistoryByOwnerQuery, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

// EnqueuePending stores a message addressed to an identity with no live
// connection. It is removed again by DrainPending or Remove.
func (s *Store) EnqueuePending(ctx context.Context, recipient string, msg *models.Message) error {
	payload, err := s.encodePayload(msg.Payload)
	if err != nil {
		return err
	}

	return s.guarded(ctx, "enqueue pending", func() error {
		if _, err := s.db.ExecContext(ctx, InsertPendingQuery,
			recipient, msg.ID, msg.From, payload, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to enqueue pending message: %w", err)
		}
		return nil
	})
}

// DrainPending atomically removes and returns all queued messages for the
// identity in original send order. A second immediate drain returns nothing.
func (s *Store) DrainPending(ctx context.Context, recipient string) ([]models.Message, error) {
	var drained []models.Message

	err := s.guarded(ctx, "drain pending", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, SelectPendingByRecipientQuery, recipient)
		if err != nil {
			return fmt.Errorf("failed to query pending queue: %w", err)
		}

		msgs, err := s.scanMessages(rows)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, DeletePendingByRecipientQuery, recipient); err != nil {
			return fmt.Errorf("failed to clear pending queue: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		drained = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}

	return drained, nil
}

// Remove deletes the message with the given identifier from both parties'
// history and from any pending queue still holding it. Removing an unknown
// identifier is a no-op.
func (s *Store) Remove(ctx context.Context, messageID string) error {
	return s.guarded(ctx, "remove message", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, DeleteHistoryByMessageIDQuery, messageID); err != nil {
			return fmt.Errorf("failed to remove from history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, DeletePendingByMessageIDQuery, messageID); err != nil {
			return fmt.Errorf("failed to remove from pending queue: %w", err)
		}

		return tx.Commit()
	})
}

func (s *Store) encodePayload(p models.Payload) (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	encrypted, err := s.encryptor.EncryptIfEnabled(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return encrypted, nil
}

func (s *Store) scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var (
			msg        models.Message
			rawPayload string
		)
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &rawPayload, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		decrypted, err := s.encryptor.DecryptIfEnabled(rawPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt payload: %w", err)
		}
		if err := msg.Payload.UnmarshalJSON([]byte(decrypted)); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}

		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}
