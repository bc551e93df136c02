package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bathanov/lingogate/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ types.LedgerStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "lingogate"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "lingogate"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) GetEntitlement(ctx context.Context, userID int64) (*types.Entitlement, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var e types.Entitlement
	err := s.pool.QueryRow(ctx, `
SELECT user_id, username, expires_at, is_active, created_at, updated_at
FROM entitlements
WHERE user_id = $1
`, userID).Scan(&e.UserID, &e.Username, &e.ExpiresAt, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) UpsertEntitlement(ctx context.Context, ent types.Entitlement) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO entitlements (user_id, username, expires_at, is_active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
  username = EXCLUDED.username,
  expires_at = EXCLUDED.expires_at,
  is_active = EXCLUDED.is_active,
  updated_at = NOW();
`, ent.UserID, strings.TrimSpace(ent.Username), ent.ExpiresAt, ent.IsActive)
	return err
}

func (s *PostgresStore) SetActive(ctx context.Context, userID int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE entitlements
SET is_active = $2, updated_at = NOW()
WHERE user_id = $1
`, userID, active)
	return err
}

func (s *PostgresStore) DeleteEntitlement(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM entitlements WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) ListEntitlements(ctx context.Context) ([]types.Entitlement, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT user_id, username, expires_at, is_active, created_at, updated_at
FROM entitlements
ORDER BY user_id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Entitlement
	for rows.Next() {
		var e types.Entitlement
		if err := rows.Scan(&e.UserID, &e.Username, &e.ExpiresAt, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GrantDays(ctx context.Context, userID int64, username string, days int, now time.Time) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newExpiry, err := grantDaysTx(ctx, tx, userID, username, days, now)
	if err != nil {
		return time.Time{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

// grantDaysTx applies the grant rule against a row-locked entitlement.
// Callers own the surrounding transaction.
func grantDaysTx(ctx context.Context, tx pgx.Tx, userID int64, username string, days int, now time.Time) (time.Time, error) {
	var current *types.Entitlement
	var e types.Entitlement
	err := tx.QueryRow(ctx, `
SELECT user_id, username, expires_at, is_active
FROM entitlements
WHERE user_id = $1
FOR UPDATE
`, userID).Scan(&e.UserID, &e.Username, &e.ExpiresAt, &e.IsActive)
	if err == nil {
		current = &e
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, err
	}

	if strings.TrimSpace(username) == "" && current != nil {
		username = current.Username
	}
	newExpiry := types.NextExpiry(current, days, now)

	_, err = tx.Exec(ctx, `
INSERT INTO entitlements (user_id, username, expires_at, is_active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (user_id) DO UPDATE SET
  username = EXCLUDED.username,
  expires_at = EXCLUDED.expires_at,
  is_active = TRUE,
  updated_at = NOW()
`, userID, strings.TrimSpace(username), newExpiry)
	if err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

func (s *PostgresStore) GetCode(ctx context.Context, code string) (*types.Code, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var c types.Code
	err := s.pool.QueryRow(ctx, `
SELECT code, days, created_by, created_at
FROM codes
WHERE code = $1
`, code).Scan(&c.Code, &c.Days, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSuchCode
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCode(ctx context.Context, c types.Code) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO codes (code, days, created_by)
VALUES ($1, $2, $3)
`, c.Code, c.Days, strings.TrimSpace(c.CreatedBy))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCodeExists
	}
	return err
}

func (s *PostgresStore) DeleteCode(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM codes WHERE code = $1`, code)
	return err
}

func (s *PostgresStore) ListCodes(ctx context.Context) ([]types.Code, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT code, days, created_by, created_at
FROM codes
ORDER BY created_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Code
	for rows.Next() {
		var c types.Code
		if err := rows.Scan(&c.Code, &c.Days, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RedeemCode(ctx context.Context, scopeID, userID int64, code string, now time.Time, rule types.ScopeRule) (*types.RedeemResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var c types.Code
	err = tx.QueryRow(ctx, `
SELECT code, days
FROM codes
WHERE code = $1
FOR UPDATE
`, code).Scan(&c.Code, &c.Days)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSuchCode
	}
	if err != nil {
		return nil, err
	}

	// The code row lock serializes concurrent redemptions of the same code,
	// so the use count read next cannot race past the rule.
	var priorUses int
	err = tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM code_uses
WHERE scope_id = $1 AND code = $2
`, scopeID, c.Code).Scan(&priorUses)
	if err != nil {
		return nil, err
	}

	activeNow := false
	var cur types.Entitlement
	err = tx.QueryRow(ctx, `
SELECT user_id, username, expires_at, is_active
FROM entitlements
WHERE user_id = $1
`, userID).Scan(&cur.UserID, &cur.Username, &cur.ExpiresAt, &cur.IsActive)
	if err == nil {
		activeNow = cur.ActiveAt(now)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if !rule.Allow(priorUses, activeNow) {
		return nil, ErrLimitReached
	}

	newExpiry, err := grantDaysTx(ctx, tx, userID, "", c.Days, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO code_uses (scope_id, code, used_at)
VALUES ($1, $2, $3)
`, scopeID, c.Code, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &types.RedeemResult{Days: c.Days, NewExpiry: newExpiry}, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o types.Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO orders (order_id, user_id, days, amount_usdt, hosted_url, settled)
VALUES ($1, $2, $3, $4, $5, FALSE)
ON CONFLICT (order_id) DO NOTHING
`, o.OrderID, o.UserID, o.Days, o.AmountUSDT, strings.TrimSpace(o.HostedURL))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderExists
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var o types.Order
	err := s.pool.QueryRow(ctx, `
SELECT order_id, user_id, days, amount_usdt, hosted_url, settled, created_at, settled_at
FROM orders
WHERE order_id = $1
`, orderID).Scan(&o.OrderID, &o.UserID, &o.Days, &o.AmountUSDT, &o.HostedURL, &o.Settled, &o.CreatedAt, &o.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownOrder
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) ListPendingOrders(ctx context.Context) ([]types.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT order_id, user_id, days, amount_usdt, hosted_url, settled, created_at, settled_at
FROM orders
WHERE NOT settled
ORDER BY created_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		var o types.Order
		if err := rows.Scan(&o.OrderID, &o.UserID, &o.Days, &o.AmountUSDT, &o.HostedURL, &o.Settled, &o.CreatedAt, &o.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SettleOrder(ctx context.Context, orderID string, now time.Time) (*types.SettleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var o types.Order
	err = tx.QueryRow(ctx, `
SELECT order_id, user_id, days, settled
FROM orders
WHERE order_id = $1
FOR UPDATE
`, orderID).Scan(&o.OrderID, &o.UserID, &o.Days, &o.Settled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownOrder
	}
	if err != nil {
		return nil, err
	}

	if o.Settled {
		// Terminal state. The row lock guarantees the first settler committed
		// before this read, so losers of a webhook/poller race land here.
		return &types.SettleResult{AlreadySettled: true, UserID: o.UserID, Days: o.Days}, nil
	}

	_, err = tx.Exec(ctx, `
UPDATE orders
SET settled = TRUE, settled_at = $2
WHERE order_id = $1
`, orderID, now)
	if err != nil {
		return nil, err
	}

	newExpiry, err := grantDaysTx(ctx, tx, o.UserID, "", o.Days, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &types.SettleResult{UserID: o.UserID, Days: o.Days, NewExpiry: newExpiry}, nil
}

func (s *PostgresStore) AddOwner(ctx context.Context, userID int64, username string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO owners (user_id, username)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET
  username = EXCLUDED.username
`, userID, strings.TrimSpace(username))
	return err
}

func (s *PostgresStore) IsOwner(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var ok bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM owners WHERE user_id = $1)
`, userID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *PostgresStore) AppendChat(ctx context.Context, userID int64, message string, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO chats (user_id, message, created_at)
VALUES ($1, $2, $3)
`, userID, message, now)
	return err
}

func (s *PostgresStore) RecentChats(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, message, created_at
FROM chats
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The query walks newest-first for the LIMIT; callers get oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
