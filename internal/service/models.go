package service

import (
	"time"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/media"
)

// UserView is the sanitized user representation returned to clients. It
// never carries the password hash or the refresh-token slot.
type UserView struct {
	ID            int64     `json:"id,string"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newUserView(u domain.User) UserView {
	return UserView{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// AuthResult bundles the sanitized user with a fresh credential pair.
type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// RegisterInput carries the registration form. Avatar is required;
// CoverImage is optional and nil when absent.
type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     media.Resource
	CoverImage *media.Resource
}

// LoginInput requires a password plus at least one of username/email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// ChannelProfileView is the aggregated public channel page.
type ChannelProfileView struct {
	ID              int64  `json:"id,string"`
	Username        string `json:"username"`
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	AvatarURL       string `json:"avatarUrl"`
	CoverImageURL   string `json:"coverImageUrl,omitempty"`
	SubscriberCount int64  `json:"subscriberCount"`
	SubscribedTo    int64  `json:"channelsSubscribedTo"`
	IsSubscribed    bool   `json:"isSubscribed"`
}

// WatchHistoryView is one entry of a user's watch history.
type WatchHistoryView struct {
	VideoID       int64     `json:"videoId,string"`
	Title         string    `json:"title"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	OwnerUsername string    `json:"ownerUsername"`
	WatchedAt     time.Time `json:"watchedAt"`
}
