package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	host     string
	user     string
	password string
	port     string
	dbname   string
	sslmode  string
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

func NewConfig(host, user, password, port, dbname, sslmode string) Config {
	return Config{
		host:     host,
		user:     user,
		password: password,
		port:     port,
		dbname:   dbname,
		sslmode:  sslmode,
	}
}

func NewPool(ctx context.Context, config Config) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, config.ConnStr())
	if err != nil {
		return nil, err
	}

	err = p.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return p, nil
}

var (
	ErrNoRows       = errors.New("no rows in result set")
	ErrQueryRow     = errors.New("could not execute query")
	ErrStoreFailed  = errors.New("could not store data")
	ErrNoID         = errors.New("data contains no id")
	ErrAlreadyExist = errors.New("control url already exists")
	ErrDeleted      = errors.New("deleted")
)

type Storage struct {
	pool *pgxpool.Pool
}

func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func New(ctx context.Context, config Config) (*Storage, error) {
	pool, err := NewPool(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) CreateTables(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS control_urls (
			control_url_id	TEXT 	NOT NULL,
			controller_id	TEXT 	NULL,
			node_id			TEXT 	NOT NULL,
			name			TEXT 	NULL,
			url				TEXT 	NULL,
			input_type		TEXT 	NULL,
			created_on  	timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			modified_on		timestamp with time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted     	BOOLEAN DEFAULT FALSE,
			deleted_on  	timestamp with time zone NULL,
			CONSTRAINT pkey_control_urls_unique PRIMARY KEY (control_url_id, deleted)
		);

		CREATE INDEX IF NOT EXISTS control_urls_node_idx ON control_urls (node_id) WHERE NOT deleted;
	`)
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) Close() {
	s.pool.Close()
}
