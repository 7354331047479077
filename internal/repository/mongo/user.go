package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/repository"
)

var _ repository.UserRepository = (*Store)(nil)

// userDocument is the stored shape of a model.User.
//
// google_id and reset_token_hash use omitempty: an absent field is what keeps
// local accounts out of the sparse unique index.
type userDocument struct {
	ID               primitive.ObjectID `bson:"_id"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	PasswordHash     string             `bson:"password_hash,omitempty"`
	GoogleID         string             `bson:"google_id,omitempty"`
	Avatar           string             `bson:"avatar,omitempty"`
	Role             string             `bson:"role"`
	IsActive         bool               `bson:"is_active"`
	ResetTokenHash   string             `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiry *time.Time         `bson:"reset_token_expiry,omitempty"`
	Wishlist         []string           `bson:"wishlist"`
	CreatedAt        time.Time          `bson:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at"`
}

func toDocument(u *model.User, id primitive.ObjectID) userDocument {
	return userDocument{
		ID:               id,
		Name:             u.Name,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		GoogleID:         u.GoogleID,
		Avatar:           u.Avatar,
		Role:             string(u.Role),
		IsActive:         u.IsActive,
		ResetTokenHash:   u.ResetTokenHash,
		ResetTokenExpiry: u.ResetTokenExpiry,
		Wishlist:         u.Wishlist,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (d *userDocument) toModel() *model.User {
	u := &model.User{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		GoogleID:         d.GoogleID,
		Avatar:           d.Avatar,
		Role:             model.Role(d.Role),
		IsActive:         d.IsActive,
		ResetTokenHash:   d.ResetTokenHash,
		ResetTokenExpiry: d.ResetTokenExpiry,
		Wishlist:         d.Wishlist,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
	if u.Wishlist == nil {
		u.Wishlist = []string{}
	}
	if u.ResetTokenExpiry != nil {
		t := u.ResetTokenExpiry.UTC()
		u.ResetTokenExpiry = &t
	}
	return u
}

// duplicateError converts a duplicate-key write error into the domain error,
// naming the index that rejected it.
func duplicateError(err error) error {
	if strings.Contains(err.Error(), "google_id") {
		return apperror.DuplicateIdentity("googleId")
	}
	return apperror.DuplicateIdentity("email")
}

// Create inserts user with a fresh ObjectID.
func (s *Store) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	id := primitive.NewObjectID()
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Wishlist == nil {
		user.Wishlist = []string{}
	}

	if _, err := s.users.InsertOne(ctx, toDocument(user, id)); err != nil {
		if mongodrv.IsDuplicateKeyError(err) {
			return duplicateError(err)
		}
		return fmt.Errorf("mongo: inserting user (email=%s): %w", user.Email, err)
	}

	user.ID = id.Hex()
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// A malformed id cannot match any document.
		return nil, apperror.NotFound("user", id)
	}
	return s.findOne(ctx, bson.M{"_id": oid}, apperror.NotFound("user", id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"email": model.NormalizeEmail(email)}, apperror.NotFoundMessage("User not found"))
}

func (s *Store) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if googleID == "" {
		return nil, apperror.NotFoundMessage("User not found")
	}
	return s.findOne(ctx, bson.M{"google_id": googleID}, apperror.NotFoundMessage("User not found"))
}

func (s *Store) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*model.User, error) {
	if hash == "" {
		return nil, apperror.InvalidOrExpiredToken()
	}
	filter := bson.M{
		"reset_token_hash":   hash,
		"reset_token_expiry": bson.M{"$gt": now.UTC()},
	}
	return s.findOne(ctx, filter, apperror.NotFoundMessage("reset token not found"))
}

func (s *Store) findOne(ctx context.Context, filter bson.M, notFound *apperror.AppError) (*model.User, error) {
	var doc userDocument
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodrv.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}

// Save $sets every mutable field and $unsets the optional ones that are empty,
// so clearing GoogleID or the reset token removes the field (and its index
// entry) rather than storing "". The wishlist is left alone.
func (s *Store) Save(ctx context.Context, user *model.User) error {
	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return apperror.NotFound("user", user.ID)
	}

	user.Email = model.NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	set := bson.M{
		"name":       user.Name,
		"email":      user.Email,
		"avatar":     user.Avatar,
		"role":       string(user.Role),
		"is_active":  user.IsActive,
		"updated_at": user.UpdatedAt,
	}
	unset := bson.M{}

	optional := []struct {
		key   string
		value any
		empty bool
	}{
		{"password_hash", user.PasswordHash, user.PasswordHash == ""},
		{"google_id", user.GoogleID, user.GoogleID == ""},
		{"reset_token_hash", user.ResetTokenHash, user.ResetTokenHash == ""},
		{"reset_token_expiry", user.ResetTokenExpiry, user.ResetTokenExpiry == nil},
	}
	for _, f := range optional {
		if f.empty {
			unset[f.key] = ""
		} else {
			set[f.key] = f.value
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.users.UpdateByID(ctx, oid, update)
	if err != nil {
		if mongodrv.IsDuplicateKeyError(err) {
			return duplicateError(err)
		}
		return fmt.Errorf("mongo: updating user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperror.NotFound("user", id)
	}

	res, err := s.users.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongo: deleting user %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// List returns users newest first.
func (s *Store) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))

	cur, err := s.users.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing users: %w", err)
	}
	defer cur.Close(ctx)

	users := []model.User{}
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decoding user: %w", err)
		}
		users = append(users, *doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterating users: %w", err)
	}
	return users, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongo: counting users: %w", err)
	}
	return int(n), nil
}

// AddToWishlist relies on $addToSet, which appends only when the value is
// not already present, so repeated adds keep the original position.
func (s *Store) AddToWishlist(ctx context.Context, userID, productID string) error {
	return s.updateWishlist(ctx, userID, bson.M{"$addToSet": bson.M{"wishlist": productID}})
}

func (s *Store) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	return s.updateWishlist(ctx, userID, bson.M{"$pull": bson.M{"wishlist": productID}})
}

func (s *Store) updateWishlist(ctx context.Context, userID string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperror.NotFound("user", userID)
	}

	res, err := s.users.UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("mongo: updating wishlist of %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}
