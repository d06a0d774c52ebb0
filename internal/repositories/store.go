package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories bound to one connection or transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Accounts() AccountRepository {
	return NewAccountRepository(s.db)
}

func (s *Store) Transactions() TransactionRepository {
	return NewTransactionRepository(s.db)
}

func (s *Store) Developers() DeveloperRepository {
	return NewDeveloperRepository(s.db)
}

func (s *Store) PaymentRequests() PaymentRequestRepository {
	return NewPaymentRequestRepository(s.db)
}

func (s *Store) Webhooks() WebhookRepository {
	return NewWebhookRepository(s.db)
}

// ExecuteInTransaction runs fn against a Store bound to a single database
// transaction. fn must only use the Store it is given.
func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(*Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
