package repository

import (
	"context"

	"github.com/streamhive/account-service/internal/domain"
)

// UserRepository exposes persistence for accounts, including the single
// refresh-token slot per user. The slot writes are unconditional
// overwrites: last writer wins, which is exactly the rotation primitive
// the session manager relies on.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (domain.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdateAccount(ctx context.Context, id int64, fullName, email string) (domain.User, error)
	UpdateAvatar(ctx context.Context, id int64, url string) (domain.User, error)
	UpdateCoverImage(ctx context.Context, id int64, url string) (domain.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	GetRefreshToken(ctx context.Context, id int64) (string, error)
	SetRefreshToken(ctx context.Context, id int64, value string) error
	ClearRefreshToken(ctx context.Context, id int64) error
}

// ProfileRepository serves read-side aggregations over channels and watch
// history.
type ProfileRepository interface {
	GetChannelProfile(ctx context.Context, username string, viewerID int64) (domain.ChannelProfile, error)
	GetWatchHistory(ctx context.Context, userID int64) ([]domain.WatchHistoryEntry, error)
}
