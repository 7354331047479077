package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, password_hash, google_id, avatar, role, is_active,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows, so scanUser can
// serve single lookups and List alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		googleID    sql.NullString
		resetHash   sql.NullString
		resetExpiry sql.NullInt64
		role        string
	)

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&googleID,
		&u.Avatar,
		&role,
		&u.IsActive,
		&resetHash,
		&resetExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.GoogleID = googleID.String
	u.ResetTokenHash = resetHash.String
	if resetExpiry.Valid {
		t := time.UnixMilli(resetExpiry.Int64).UTC()
		u.ResetTokenExpiry = &t
	}
	u.Wishlist = []string{}

	return &u, nil
}

// nullString maps "" to SQL NULL. google_id and reset_token_hash rely on this:
// NULLs do not collide in a UNIQUE index and never match a lookup.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// duplicateField names the unique column a constraint error refers to.
func duplicateField(err error) string {
	if strings.Contains(err.Error(), "users.google_id") {
		return "googleId"
	}
	return "email"
}

// Create inserts a new user and fills in ID, timestamps and defaults in place.
//
// Uniqueness is enforced by the UNIQUE indexes, not by a prior SELECT: when two
// registrations race on the same email, exactly one INSERT wins and the other
// gets apperror.DuplicateIdentity.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Wishlist == nil {
		user.Wishlist = []string{}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		nullString(user.GoogleID),
		user.Avatar,
		string(user.Role),
		user.IsActive,
		nullString(user.ResetTokenHash),
		nullMillis(user.ResetTokenExpiry),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateIdentity(duplicateField(err))
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return db.getOne(ctx, row, apperror.NotFound("user", id), "id "+id)
}

// GetByEmail looks a user up by (normalised) email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return db.getOne(ctx, row, apperror.NotFoundMessage("User not found"), "email "+email)
}

// GetByGoogleID looks up the account bridged to a Google identity.
func (db *DB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if googleID == "" {
		return nil, apperror.NotFoundMessage("User not found")
	}
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ?`, googleID)
	return db.getOne(ctx, row, apperror.NotFoundMessage("User not found"), "google id")
}

// GetByResetTokenHash returns the user whose stored reset hash equals hash
// and whose expiry is strictly after now. An expired token is
// indistinguishable from an unknown one.
func (db *DB) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*model.User, error) {
	if hash == "" {
		return nil, apperror.InvalidOrExpiredToken()
	}
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token_hash = ? AND reset_token_expiry > ?`,
		hash, now.UnixMilli())
	return db.getOne(ctx, row, apperror.NotFoundMessage("reset token not found"), "reset token")
}

func (db *DB) getOne(ctx context.Context, row *sql.Row, notFound *apperror.AppError, what string) (*model.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", what, err)
	}

	if err := db.loadWishlist(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Save writes every mutable field of user back to its row and bumps UpdatedAt.
//
// Save persists PasswordHash exactly as given. Callers hash new passwords
// themselves (see service.AuthService.ResetPassword), so saving an unrelated
// change can never re-hash an existing hash.
//
// The wishlist is NOT written here; it has its own methods.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			name = ?, email = ?, password_hash = ?, google_id = ?, avatar = ?,
			role = ?, is_active = ?, reset_token_hash = ?, reset_token_expiry = ?,
			updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.PasswordHash,
		nullString(user.GoogleID),
		user.Avatar,
		string(user.Role),
		user.IsActive,
		nullString(user.ResetTokenHash),
		nullMillis(user.ResetTokenExpiry),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateIdentity(duplicateField(err))
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// Delete removes a user. Their wishlist rows go with them (ON DELETE CASCADE).
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// List returns users newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	// Wishlists are loaded after the cursor is closed: with a single pooled
	// connection (":memory:") a nested query would wait forever.
	rows.Close()
	for i := range users {
		if err := db.loadWishlist(ctx, &users[i]); err != nil {
			return nil, err
		}
	}

	return users, nil
}

func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}
