package sqlite

import (
	"context"
	"fmt"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/model"
)

// loadWishlist fills u.Wishlist in insertion order.
func (db *DB) loadWishlist(ctx context.Context, u *model.User) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT product_id FROM wishlist_items WHERE user_id = ? ORDER BY position`, u.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading wishlist for %s: %w", u.ID, err)
	}
	defer rows.Close()

	items := []string{}
	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return fmt.Errorf("sqlite: scanning wishlist row: %w", err)
		}
		items = append(items, productID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating wishlist rows: %w", err)
	}

	u.Wishlist = items
	return nil
}

// AddToWishlist appends productID to the user's wishlist. Adding an item that
// is already present is a no-op and keeps its original position.
func (db *DB) AddToWishlist(ctx context.Context, userID, productID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO wishlist_items (user_id, product_id, position)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM wishlist_items WHERE user_id = ?))`,
		userID, productID, userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", userID)
		}
		return fmt.Errorf("sqlite: adding %s to wishlist of %s: %w", productID, userID, err)
	}
	return nil
}

// RemoveFromWishlist is idempotent: removing an absent item succeeds.
func (db *DB) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM wishlist_items WHERE user_id = ? AND product_id = ?`,
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s from wishlist of %s: %w", productID, userID, err)
	}
	return nil
}
