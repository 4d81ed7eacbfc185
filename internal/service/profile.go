package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/media"
	"github.com/streamhive/account-service/internal/repository"
)

// CurrentUser re-reads the authoritative user record, for callers that
// need fresher fields than the token's denormalized claims.
func (s *AccountService) CurrentUser(ctx context.Context, userID int64) (UserView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.CurrentUser")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return UserView{}, domain.Wrap(domain.KindNotFound, "User does not exist.", err)
		}
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not load user.", err)
	}
	return newUserView(user), nil
}

// UpdateAccount changes the mutable plain profile fields.
func (s *AccountService) UpdateAccount(ctx context.Context, userID int64, fullName, email string) (UserView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.UpdateAccount")
	defer span.End()

	fullName = strings.TrimSpace(fullName)
	email = normalizeIdentifier(email)
	if fullName == "" {
		return UserView{}, domain.E(domain.KindValidation, "Full name is required.")
	}
	if email == "" || !strings.Contains(email, "@") {
		return UserView{}, domain.E(domain.KindValidation, "A valid email is required.")
	}

	user, err := s.users.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return UserView{}, domain.Wrap(domain.KindConflict, "Email already in use.", err)
		}
		if repository.IsNotFound(err) {
			return UserView{}, domain.Wrap(domain.KindNotFound, "User does not exist.", err)
		}
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not update account.", err)
	}

	s.audit("account.updated", zap.Int64("user_id", userID))
	return newUserView(user), nil
}

// UpdateAvatar replaces the avatar with an already-uploaded resource.
func (s *AccountService) UpdateAvatar(ctx context.Context, userID int64, avatar media.Resource) (UserView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.UpdateAvatar")
	defer span.End()

	if avatar.URL == "" {
		return UserView{}, domain.E(domain.KindValidation, "Avatar file is required.")
	}

	user, err := s.users.UpdateAvatar(ctx, userID, avatar.URL)
	if err != nil {
		if repository.IsNotFound(err) {
			return UserView{}, domain.Wrap(domain.KindNotFound, "User does not exist.", err)
		}
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not update avatar.", err)
	}

	s.audit("avatar.updated", zap.Int64("user_id", userID))
	return newUserView(user), nil
}

// UpdateCoverImage replaces the optional cover image.
func (s *AccountService) UpdateCoverImage(ctx context.Context, userID int64, cover media.Resource) (UserView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.UpdateCoverImage")
	defer span.End()

	if cover.URL == "" {
		return UserView{}, domain.E(domain.KindValidation, "Cover image file is required.")
	}

	user, err := s.users.UpdateCoverImage(ctx, userID, cover.URL)
	if err != nil {
		if repository.IsNotFound(err) {
			return UserView{}, domain.Wrap(domain.KindNotFound, "User does not exist.", err)
		}
		span.RecordError(err)
		return UserView{}, domain.Wrap(domain.KindInternal, "Could not update cover image.", err)
	}

	s.audit("cover_image.updated", zap.Int64("user_id", userID))
	return newUserView(user), nil
}

// ChannelProfile aggregates the public channel page for username as seen
// by the viewing user.
func (s *AccountService) ChannelProfile(ctx context.Context, username string, viewerID int64) (ChannelProfileView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.ChannelProfile")
	defer span.End()

	username = normalizeIdentifier(username)
	if username == "" {
		return ChannelProfileView{}, domain.E(domain.KindValidation, "Username is required.")
	}

	profile, err := s.profiles.GetChannelProfile(ctx, username, viewerID)
	if err != nil {
		if repository.IsNotFound(err) {
			return ChannelProfileView{}, domain.Wrap(domain.KindNotFound, "Channel does not exist.", err)
		}
		span.RecordError(err)
		return ChannelProfileView{}, domain.Wrap(domain.KindInternal, "Could not load channel profile.", err)
	}

	return ChannelProfileView{
		ID:              profile.UserID,
		Username:        profile.Username,
		FullName:        profile.FullName,
		Email:           profile.Email,
		AvatarURL:       profile.AvatarURL,
		CoverImageURL:   profile.CoverImageURL,
		SubscriberCount: profile.SubscriberCount,
		SubscribedTo:    profile.SubscribedTo,
		IsSubscribed:    profile.IsSubscribed,
	}, nil
}

// WatchHistory lists the user's watched videos, most recent first.
func (s *AccountService) WatchHistory(ctx context.Context, userID int64) ([]WatchHistoryView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.WatchHistory")
	defer span.End()

	entries, err := s.profiles.GetWatchHistory(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, domain.Wrap(domain.KindInternal, "Could not load watch history.", err)
	}

	views := make([]WatchHistoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, WatchHistoryView{
			VideoID:       e.VideoID,
			Title:         e.Title,
			ThumbnailURL:  e.ThumbnailURL,
			OwnerUsername: e.OwnerUsername,
			WatchedAt:     e.WatchedAt,
		})
	}
	return views, nil
}
