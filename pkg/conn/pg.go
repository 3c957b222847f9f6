// Package conn builds the shared PostgreSQL connection the audit store
// writes through.
package conn

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/pkg/exception"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// Option defines connection options for PostgreSQL. ConnString wins over
// the individual fields when set.
type Option struct {
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	User     string            `json:"user"`
	Password string            `json:"password"`
	Database string            `json:"database"`
	SSLMode  string            `json:"sslMode"`
	Params   map[string]string `json:"params"`

	ConnString string `json:"connString"`

	MaxOpenConns  int   `json:"maxOpenConns"`
	MaxIdleConns  int   `json:"maxIdleConns"`
	ConnMaxLifeMs int64 `json:"connMaxLifeMs"`

	Config *gorm.Config `json:"-"`
}

// Client wraps a PostgreSQL connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens a PostgreSQL connection pool from the provided options.
func New(option Option) (*Client, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, err
	}

	if option.MaxOpenConns > 0 || option.MaxIdleConns > 0 || option.ConnMaxLifeMs > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if option.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(option.MaxOpenConns)
		}
		if option.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(option.MaxIdleConns)
		}
		if option.ConnMaxLifeMs > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(option.ConnMaxLifeMs) * time.Millisecond)
		}
	}

	return &Client{opt: option, db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Ping verifies the pool can reach the server.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return exception.ErrStoreNilClient
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}
	if opt.Database == "" {
		return "", exception.ErrStoreEmptyDSN
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + opt.Database,
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
