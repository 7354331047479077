package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// fakeUserRepo is an in-memory repository.UserRepository. It enforces the
// same uniqueness rules as the real stores (email, and google id when set)
// and hands out copies, so a test cannot accidentally pass by mutating the
// "stored" user through a returned pointer.
//
// Set the *Err fields to simulate a failing database.

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	createErr error
	getErr    error
	saveErr   error
	// saveErrOnce fails only the next Save, then clears itself.
	saveErrOnce  error
	saves        int
	wishlistAdds int
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Wishlist = append([]string{}, u.Wishlist...)
	if u.ResetTokenExpiry != nil {
		t := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &t
	}
	return &c
}

func (f *fakeUserRepo) conflict(u *model.User) error {
	for id, other := range f.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return apperror.DuplicateIdentity("email")
		}
		if u.GoogleID != "" && other.GoogleID == u.GoogleID {
			return apperror.DuplicateIdentity("googleId")
		}
	}
	return nil
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}

	user.Email = model.NormalizeEmail(user.Email)
	if err := f.conflict(user); err != nil {
		return err
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Wishlist == nil {
		user.Wishlist = []string{}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = copyUser(user)
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, apperror.NotFoundMessage("User not found")
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id })
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return f.find(func(u *model.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return googleID != "" && u.GoogleID == googleID })
}

func (f *fakeUserRepo) GetByResetTokenHash(_ context.Context, hash string, now time.Time) (*model.User, error) {
	return f.find(func(u *model.User) bool {
		return hash != "" && u.ResetTokenHash == hash && u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now)
	})
}

func (f *fakeUserRepo) Save(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErrOnce != nil {
		err := f.saveErrOnce
		f.saveErrOnce = nil
		return err
	}
	if f.saveErr != nil {
		return f.saveErr
	}

	stored, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	user.Email = model.NormalizeEmail(user.Email)
	if err := f.conflict(user); err != nil {
		return err
	}
	c := copyUser(user)
	c.Wishlist = stored.Wishlist
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = time.Now()
	f.users[user.ID] = c
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) List(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, *copyUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if opts.Offset >= len(all) {
		return []model.User{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], nil
}

func (f *fakeUserRepo) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeUserRepo) AddToWishlist(_ context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	f.wishlistAdds++
	if !u.HasWishlistItem(productID) {
		u.Wishlist = append(u.Wishlist, productID)
	}
	return nil
}

func (f *fakeUserRepo) RemoveFromWishlist(_ context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	kept := u.Wishlist[:0]
	for _, id := range u.Wishlist {
		if id != productID {
			kept = append(kept, id)
		}
	}
	u.Wishlist = kept
	return nil
}

// stored returns the repository's own copy of a user, for assertions.
func (f *fakeUserRepo) stored(t *testing.T, id string) *model.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	require.True(t, ok, "user %s not in repo", id)
	return copyUser(u)
}

// fakeMailer records reset URLs instead of sending them.
type fakeMailer struct {
	err  error
	sent []sentMail
}

type sentMail struct {
	to, url string
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, resetURL string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, url: resetURL})
	return nil
}

// fakeRevocations is an in-memory revocation.List.
type fakeRevocations struct {
	revoked  map[string]time.Time
	checkErr error
	markErr  error
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{revoked: make(map[string]time.Time)}
}

func (r *fakeRevocations) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.revoked[jti] = expiresAt
	return nil
}

func (r *fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	if r.checkErr != nil {
		return false, r.checkErr
	}
	_, ok := r.revoked[jti]
	return ok, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret-for-tests-only!!",
		RefreshSecret: "refresh-secret-for-tests-only!",
	})
	require.NoError(t, err)
	return ts
}

// Cost 4 is the bcrypt minimum and keeps these tests fast.
func newTestPasswords() *auth.PasswordService {
	return auth.NewPasswordServiceWithCost(4)
}

// seedUser stores a local account with the given password.
func seedUser(t *testing.T, repo *fakeUserRepo, email, password string, mutate ...func(*model.User)) *model.User {
	t.Helper()
	hash, err := newTestPasswords().Hash(password)
	require.NoError(t, err)

	u := &model.User{Name: "Test User", Email: email, PasswordHash: hash, Role: model.RoleUser, IsActive: true}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

// assertAppError checks that err wraps sentinel.
func assertAppError(t *testing.T, err, sentinel error) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr
}
