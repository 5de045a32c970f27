package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ricevute/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteRepository is the record store for expenses and users. The document
// store's last-writer-wins semantics are preserved: field updates overwrite
// unconditionally, there is no merge.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const expenseColumns = `id, user_id, uploader_email, amount, date, merchant, category,
	description, original_image_url, thumbnail_url, status, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	var status string
	err := row.Scan(&e.ID, &e.UserID, &e.UploaderEmail, &e.Amount, &e.Date,
		&e.Merchant, &e.Category, &e.Description, &e.OriginalImageURL,
		&e.ThumbnailURL, &status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	e.Status = core.NormalizeStatus(status, nil)
	return e, nil
}

// CreateExpense inserts one record, assigning id and audit timestamps.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.Status == "" {
		e.Status = core.StatusSubmitted
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validate expense: %w", err)
	}

	e.ID = uuid.NewString()
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.UploaderEmail, e.Amount, e.Date, e.Merchant, e.Category,
		e.Description, e.OriginalImageURL, e.ThumbnailURL, string(e.Status),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount,
		"merchant", e.Merchant)

	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns the newest records first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// ListExpensesBefore returns the page following the (createdBefore, beforeID)
// keyset boundary, newest first.
func (r *SQLiteRepository) ListExpensesBefore(ctx context.Context, createdBefore time.Time, beforeID string, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE created_at < ? OR (created_at = ? AND id < ?)
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		createdBefore, createdBefore, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses before: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func (r *SQLiteRepository) UpdateExpenseAmount(ctx context.Context, id string, amount float64) error {
	return r.updateExpense(ctx, id, `amount = ?`, amount)
}

func (r *SQLiteRepository) UpdateExpenseDate(ctx context.Context, id string, date time.Time) error {
	return r.updateExpense(ctx, id, `date = ?`, date)
}

func (r *SQLiteRepository) UpdateExpenseStatus(ctx context.Context, id string, status core.Status) error {
	return r.updateExpense(ctx, id, `status = ?`, string(status))
}

func (r *SQLiteRepository) updateExpense(ctx context.Context, id, setClause string, value any) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET `+setClause+`, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExpense removes the record and returns its last snapshot for the
// asynchronous blob cleanup.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) (core.Expense, error) {
	snapshot, err := r.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted", "expense_id", id)
	return snapshot, nil
}

// UnprocessedSummary sums amounts of not-yet-settled records (submitted or
// held) grouped by uploader email. Records whose identity lookup failed at
// ingestion are grouped under "unknown".
func (r *SQLiteRepository) UnprocessedSummary(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN uploader_email = '' THEN 'unknown' ELSE uploader_email END,
		       SUM(amount)
		FROM expenses
		WHERE status IN (?, ?)
		GROUP BY 1`,
		string(core.StatusSubmitted), string(core.StatusHeld))
	if err != nil {
		return nil, fmt.Errorf("unprocessed summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]float64)
	for rows.Next() {
		var email string
		var total float64
		if err := rows.Scan(&email, &total); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summary[email] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return summary, nil
}

// CreateUser inserts an identity record with a pre-hashed password.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User, passwordHash string) (core.User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, user_name, password_hash, disabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.UserName, passwordHash, u.Disabled, u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID, "email", u.Email)
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, user_name, password_hash, disabled, created_at
		FROM users WHERE email = ?`, email)

	var u core.User
	var hash string
	err := row.Scan(&u.ID, &u.Email, &u.UserName, &hash, &u.Disabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, "", fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return u, hash, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, user_name, disabled, created_at
		FROM users WHERE id = ?`, id)

	var u core.User
	err := row.Scan(&u.ID, &u.Email, &u.UserName, &u.Disabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ResolveEmail looks up the uploader's email for ingestion. Implements the
// orchestrator's identity resolver.
func (r *SQLiteRepository) ResolveEmail(ctx context.Context, userID string) (string, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}
