package repository

import (
	"context"
	"fmt"
	"sync"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")

	ErrChallengePending      = errors.New("challenge already pending")
	ErrChallengeResolved     = errors.New("challenge already resolved")
	ErrInvalidOrInactiveCode = errors.New("invalid or inactive invite code")
	ErrAlreadyAttributed     = errors.New("member already attributed")
	ErrAlreadyLeft           = errors.New("member already marked as left")
)

type Repository struct {
	db *sqlx.DB

	// read-through cache of a member's active invitation, evicted on
	// every counter mutation and deactivation. inviteGen guards against
	// a reader re-caching a row it loaded before a concurrent eviction.
	inviteCache map[int64]*model.Invitation
	inviteGen   map[int64]uint64
	sync.Mutex
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Transaction(ctx context.Context, t func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	err = t(tx)
	if err != nil {
		txErr := tx.Rollback()
		if txErr != nil {
			return errors.Wrapf(err, "rollback error: %v", txErr)
		}
		return err
	}
	return tx.Commit()
}

type Config struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func New(cfg Config) (*Repository, error) {
	url := cfg.GetDatabaseURL()
	db, err := sqlx.Connect("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Logger().Info("Connected to database successfully")

	return &Repository{
		db:          db,
		inviteCache: make(map[int64]*model.Invitation),
		inviteGen:   make(map[int64]uint64),
	}, nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}
