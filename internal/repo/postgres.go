package repo

import (
    "context"
    "database/sql"
    "errors"
    "net"
    "net/url"
    "os"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "github.com/google/uuid"
    "github.com/tinoosan/debrix/internal/data"
)

// PostgresRepo implements TransferRepo backed by PostgreSQL. It expects a
// table `transfers` and creates it when missing.
type PostgresRepo struct {
    db *sql.DB
}

// NewPostgresRepo constructs a repository using the provided DSN.
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    // Verify connection
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    r := &PostgresRepo{db: db}
    if err := r.ensureSchema(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return r, nil
}

// NewPostgresRepoFromEnv constructs a DSN using component env vars.
// Recognized envs (with defaults):
//   POSTGRES_HOST (postgres), POSTGRES_PORT (5432), POSTGRES_DB (debrix),
//   POSTGRES_USER (debrix), POSTGRES_PASSWORD (empty), POSTGRES_SSLMODE (disable)
// Credentials and db name are URL-encoded to handle special characters safely.
func NewPostgresRepoFromEnv() (*PostgresRepo, error) {
    host := getenv("POSTGRES_HOST", "postgres")
    port := getenv("POSTGRES_PORT", "5432")
    db := getenv("POSTGRES_DB", "debrix")
    user := getenv("POSTGRES_USER", "debrix")
    pass := getenv("POSTGRES_PASSWORD", "")
    ssl := getenv("POSTGRES_SSLMODE", "disable")

    u := &url.URL{
        Scheme: "postgres",
        User:   url.UserPassword(user, pass),
        Host:   net.JoinHostPort(host, port),
        Path:   "/" + db,
    }
    q := url.Values{}
    q.Set("sslmode", ssl)
    u.RawQuery = q.Encode()
    return NewPostgresRepo(u.String())
}

func getenv(k, def string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return def
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

func (r *PostgresRepo) ensureSchema(ctx context.Context) error {
    _, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS transfers (
    id         UUID PRIMARY KEY,
    source     TEXT NOT NULL,
    provider   TEXT NOT NULL,
    filename   TEXT NOT NULL DEFAULT '',
    bytes      BIGINT NOT NULL DEFAULT 0,
    status     TEXT NOT NULL,
    error      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
    return err
}

const transferCols = `id, source, provider, filename, bytes, status, error, created_at, updated_at`

func (r *PostgresRepo) List(ctx context.Context) (data.Transfers, error) {
    rows, err := r.db.QueryContext(ctx, `SELECT `+transferCols+` FROM transfers ORDER BY created_at`)
    if err != nil {
        return nil, err
    }
    defer func() { _ = rows.Close() }()

    out := make(data.Transfers, 0)
    for rows.Next() {
        t, err := scanTransfer(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*data.Transfer, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+transferCols+` FROM transfers WHERE id = $1`, id)
    t, err := scanTransfer(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, data.ErrNotFound
    }
    return t, err
}

func (r *PostgresRepo) Add(ctx context.Context, t *data.Transfer) (*data.Transfer, error) {
    if t.ID == "" {
        t.ID = uuid.NewString()
    }
    now := time.Now()
    if t.CreatedAt.IsZero() {
        t.CreatedAt = now
    }
    t.UpdatedAt = now
    _, err := r.db.ExecContext(ctx, `
INSERT INTO transfers (`+transferCols+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
        t.ID, t.Source, t.Provider, t.Filename, t.Bytes, string(t.Status), t.Error, t.CreatedAt, t.UpdatedAt)
    if err != nil {
        return nil, err
    }
    return t.Clone(), nil
}

func (r *PostgresRepo) SetProgress(ctx context.Context, id string, bytes int64) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE transfers SET bytes = $2, updated_at = now() WHERE id = $1`, id, bytes)
    if err != nil {
        return err
    }
    return checkAffected(res)
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status data.TransferStatus, bytes int64, errMsg string) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE transfers SET status = $2, bytes = $3, error = $4, updated_at = now() WHERE id = $1`,
        id, string(status), bytes, errMsg)
    if err != nil {
        return err
    }
    return checkAffected(res)
}

func checkAffected(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return data.ErrNotFound
    }
    return nil
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*data.Transfer, error) {
    var t data.Transfer
    var status string
    if err := row.Scan(&t.ID, &t.Source, &t.Provider, &t.Filename, &t.Bytes, &status, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
        return nil, err
    }
    t.Status = data.TransferStatus(status)
    return &t, nil
}
