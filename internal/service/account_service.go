// Package service implements the session lifecycle and profile operations.
// Every authentication attempt is a fresh transition with a terminal
// outcome; the only persisted session state is the per-user refresh slot.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/password"
	"github.com/streamhive/account-service/internal/repository"
	"github.com/streamhive/account-service/internal/token"
)

// AccountService orchestrates registration, login, logout, refresh,
// password change, and profile reads. It is the only writer of the
// refresh-token slot.
type AccountService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	codec    *token.Codec
	hasher   *password.Hasher
	node     *snowflake.Node
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAccountService wires dependencies.
func NewAccountService(users repository.UserRepository, profiles repository.ProfileRepository, codec *token.Codec, hasher *password.Hasher, node *snowflake.Node, logger *zap.Logger) *AccountService {
	return &AccountService{
		users:    users,
		profiles: profiles,
		codec:    codec,
		hasher:   hasher,
		node:     node,
		logger:   logger,
		tracer:   otel.Tracer("github.com/streamhive/account-service/internal/service"),
	}
}

// Register validates and persists a new account, returning the sanitized
// user. Exactly one avatar is required; the cover image is optional.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (UserView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Register")
	defer span.End()

	username := normalizeIdentifier(in.Username)
	email := normalizeIdentifier(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	switch {
	case username == "":
		return UserView{}, domain.E(domain.KindValidation, "Username is required.")
	case email == "" || !strings.Contains(email, "@"):
		return UserView{}, domain.E(domain.KindValidation, "A valid email is required.")
	case fullName == "":
		return UserView{}, domain.E(domain.KindValidation, "Full name is required.")
	case in.Password == "":
		return UserView{}, domain.E(domain.KindValidation, "Password is required.")
	case in.Avatar.URL == "":
		return UserView{}, domain.E(domain.KindValidation, "Avatar file is required.")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not check existing users.", err)
	}
	if exists {
		return UserView{}, domain.E(domain.KindConflict, "User with email or username already exists.")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not hash password.", err)
	}

	user := domain.User{
		ID:           s.node.Generate().Int64(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		AvatarURL:    in.Avatar.URL,
		PasswordHash: hash,
	}
	if in.CoverImage != nil {
		user.CoverImageURL = in.CoverImage.URL
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		span.RecordError(err)
		if repository.IsUniqueViolation(err) {
			return UserView{}, domain.Wrap(domain.KindConflict, "User with email or username already exists.", err)
		}
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not create user.", err)
	}

	// Re-read guards against a silent write failure.
	persisted, err := s.users.GetByID(ctx, created.ID)
	if err != nil {
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Something went wrong while registering.", err)
	}

	s.audit("register.success", zap.Int64("user_id", persisted.ID), zap.String("username", persisted.Username))
	return newUserView(persisted), nil
}

// Login verifies credentials, mints an access token, and rotates the
// refresh slot. Every prior refresh token for the user becomes unusable.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Login")
	defer span.End()

	username := normalizeIdentifier(in.Username)
	email := normalizeIdentifier(in.Email)
	if username == "" && email == "" {
		return AuthResult{}, domain.E(domain.KindValidation, "Username or email is required.")
	}
	if in.Password == "" {
		return AuthResult{}, domain.E(domain.KindValidation, "Password is required.")
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthResult{}, domain.Wrap(domain.KindNotFound, "User does not exist.", err)
		}
		span.RecordError(err)
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not look up user.", err)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not verify password.", err)
	}
	if !ok {
		return AuthResult{}, domain.E(domain.KindUnauthorized, "Invalid credentials.")
	}

	result, err := s.issuePair(ctx, user)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}

	s.audit("login.success", zap.Int64("user_id", user.ID))
	return result, nil
}

// Logout clears the refresh slot, invalidating every outstanding refresh
// token for the user. Calling it twice is harmless.
func (s *AccountService) Logout(ctx context.Context, userID int64) error {
	ctx, span := s.startSpan(ctx, "AccountService.Logout")
	defer span.End()

	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		span.RecordError(err)
		return domain.Wrap(domain.KindInternal, "Could not clear session.", err)
	}

	s.audit("logout.success", zap.Int64("user_id", userID))
	return nil
}

// Refresh exchanges a valid, current refresh token for a new access/refresh
// pair and rotates the slot again: refresh tokens are single-use. A token
// that is expired, tampered with, or superseded by a later rotation is
// rejected as unauthorized.
func (s *AccountService) Refresh(ctx context.Context, incoming string) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Refresh")
	defer span.End()

	if incoming == "" {
		return AuthResult{}, domain.E(domain.KindUnauthorized, "Refresh token is required.")
	}

	userID, err := s.codec.VerifyRefresh(incoming)
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return AuthResult{}, domain.Wrap(domain.KindUnauthorized, "Refresh token has expired.", err)
	case err != nil:
		return AuthResult{}, domain.Wrap(domain.KindUnauthorized, "Refresh token is invalid.", err)
	}

	stored, err := s.users.GetRefreshToken(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthResult{}, domain.Wrap(domain.KindUnauthorized, "Refresh token is invalid.", err)
		}
		span.RecordError(err)
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not load session.", err)
	}

	// Equality with the stored slot is the revocation check: a rotated-out
	// token still passes signature verification but fails here.
	if stored == "" || stored != incoming {
		s.audit("refresh.replay_rejected", zap.Int64("user_id", userID))
		return AuthResult{}, domain.E(domain.KindUnauthorized, "Refresh token is superseded or revoked.")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthResult{}, domain.Wrap(domain.KindUnauthorized, "Refresh token is invalid.", err)
		}
		span.RecordError(err)
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not load user.", err)
	}

	result, err := s.issuePair(ctx, user)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}

	s.audit("refresh.success", zap.Int64("user_id", userID))
	return result, nil
}

// ChangePassword verifies the old password and persists a new hash. The
// refresh slot is deliberately left intact: existing sessions survive a
// password change.
func (s *AccountService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AccountService.ChangePassword")
	defer span.End()

	if oldPassword == "" || newPassword == "" {
		return domain.E(domain.KindValidation, "Old and new passwords are required.")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Wrap(domain.KindNotFound, "User does not exist.", err)
		}
		span.RecordError(err)
		return domain.Wrap(domain.KindInternal, "Could not load user.", err)
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		span.RecordError(err)
		return domain.Wrap(domain.KindInternal, "Could not verify password.", err)
	}
	if !ok {
		return domain.E(domain.KindUnauthorized, "Old password is incorrect.")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return domain.Wrap(domain.KindInternal, "Could not hash password.", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		span.RecordError(err)
		return domain.Wrap(domain.KindInternal, "Could not update password.", err)
	}

	s.audit("password.changed", zap.Int64("user_id", userID))
	return nil
}

// issuePair signs a fresh access/refresh pair and rotates the slot to the
// new refresh value in one go.
func (s *AccountService) issuePair(ctx context.Context, user domain.User) (AuthResult, error) {
	access, err := s.codec.SignAccess(user)
	if err != nil {
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not sign access token.", err)
	}
	refresh, err := s.codec.SignRefresh(user.ID)
	if err != nil {
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not sign refresh token.", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return AuthResult{}, domain.Wrap(domain.KindInternal, "Could not persist session.", err)
	}
	return AuthResult{User: newUserView(user), AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AccountService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AccountService) audit(event string, fields ...zap.Field) {
	logger := s.logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info(event, fields...)
}

func normalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
