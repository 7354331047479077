package mongo

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/model"
)

// newTestStore connects to the server named by MONGO_URI and uses a throwaway
// database that is dropped when the test ends. Without MONGO_URI the test is
// skipped: unlike sqlite there is no in-process mongod to fall back on.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping mongo store tests")
	}

	ctx := context.Background()
	dbName := "storefront_test_" + primitive.NewObjectID().Hex()
	s, err := New(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		_ = s.users.Database().Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestDuplicateError_NamesField(t *testing.T) {
	err := duplicateError(errors.New(`E11000 duplicate key error collection: users index: google_id_unique_sparse`))
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "googleId" {
		t.Errorf("duplicateError() = %v, want field googleId", err)
	}

	err = duplicateError(errors.New(`E11000 duplicate key error collection: users index: email_unique`))
	if !errors.As(err, &appErr) || appErr.Field != "email" {
		t.Errorf("duplicateError() = %v, want field email", err)
	}
	if !errors.Is(err, apperror.ErrDuplicateIdentity) {
		t.Errorf("duplicateError() should wrap ErrDuplicateIdentity")
	}
}

func TestStore_CreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Name: "Ada", Email: " Ada@Example.com", PasswordHash: "hash", IsActive: true}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := primitive.ObjectIDFromHex(u.ID); err != nil {
		t.Errorf("ID %q is not an ObjectID hex: %v", u.ID, err)
	}

	byID, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Email != "ada@example.com" || byID.Role != model.RoleUser {
		t.Errorf("GetUserByID() = %+v", byID)
	}

	if _, err := s.GetByEmail(ctx, "ADA@example.com"); err != nil {
		t.Errorf("GetByEmail() error = %v", err)
	}
	if _, err := s.GetUserByID(ctx, "not-an-object-id"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(bad hex) error = %v, want ErrNotFound", err)
	}

	dup := &model.User{Name: "Other", Email: "ada@example.com", PasswordHash: "x", IsActive: true}
	if err := s.Create(ctx, dup); !errors.Is(err, apperror.ErrDuplicateIdentity) {
		t.Errorf("Create() duplicate error = %v, want ErrDuplicateIdentity", err)
	}
}

func TestStore_SparseGoogleID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if err := s.Create(ctx, &model.User{Name: "local", Email: email, PasswordHash: "h", IsActive: true}); err != nil {
			t.Fatalf("Create(%s) error = %v", email, err)
		}
	}

	g := &model.User{Name: "g", Email: "g@example.com", GoogleID: "sub-1", IsActive: true}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("Create() bridged error = %v", err)
	}
	found, err := s.GetByGoogleID(ctx, "sub-1")
	if err != nil || found.ID != g.ID {
		t.Fatalf("GetByGoogleID() = %v, %v", found, err)
	}

	again := &model.User{Name: "g2", Email: "g2@example.com", GoogleID: "sub-1", IsActive: true}
	if err := s.Create(ctx, again); !errors.Is(err, apperror.ErrDuplicateIdentity) {
		t.Errorf("Create() reused google id error = %v, want ErrDuplicateIdentity", err)
	}
}

func TestStore_ResetTokenAndSave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Name: "r", Email: "r@example.com", PasswordHash: "h", IsActive: true}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now := time.Now()
	expiry := now.Add(time.Hour)
	u.ResetTokenHash = "digest"
	u.ResetTokenExpiry = &expiry
	if err := s.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := s.GetByResetTokenHash(ctx, "digest", now); err != nil {
		t.Errorf("GetByResetTokenHash() error = %v", err)
	}
	if _, err := s.GetByResetTokenHash(ctx, "digest", now.Add(2*time.Hour)); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expired lookup error = %v, want ErrNotFound", err)
	}

	u.ClearResetToken()
	if err := s.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ := s.GetUserByID(ctx, u.ID)
	if got.ResetTokenHash != "" || got.ResetTokenExpiry != nil || got.PasswordHash != "h" {
		t.Errorf("after clear: %+v", got)
	}
}

func TestStore_Wishlist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{Name: "w", Email: "w@example.com", PasswordHash: "h", IsActive: true}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, p := range []string{"p1", "p2", "p1"} {
		if err := s.AddToWishlist(ctx, u.ID, p); err != nil {
			t.Fatalf("AddToWishlist() error = %v", err)
		}
	}
	if err := s.RemoveFromWishlist(ctx, u.ID, "p1"); err != nil {
		t.Fatalf("RemoveFromWishlist() error = %v", err)
	}
	if err := s.RemoveFromWishlist(ctx, u.ID, "p1"); err != nil {
		t.Fatalf("second RemoveFromWishlist() error = %v", err)
	}

	got, _ := s.GetUserByID(ctx, u.ID)
	if !reflect.DeepEqual(got.Wishlist, []string{"p2"}) {
		t.Errorf("Wishlist = %v, want [p2]", got.Wishlist)
	}

	if err := s.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.AddToWishlist(ctx, u.ID, "p3"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddToWishlist() on deleted user error = %v, want ErrNotFound", err)
	}
}
