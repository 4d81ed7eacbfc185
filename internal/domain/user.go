package domain

import "time"

// User represents a registered account. PasswordHash and RefreshToken never
// leave the service layer; responses are built from sanitized views.
type User struct {
	ID            int64
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string
	PasswordHash  string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the caller identity resolved by the auth gate from access
// token claims. The profile fields are denormalized at sign time and may
// lag the store until the next token issuance.
type Identity struct {
	UserID   int64
	Username string
	Email    string
	FullName string
}

// ChannelProfile is the public view of a user's channel plus subscription
// aggregates relative to the viewing user.
type ChannelProfile struct {
	UserID          int64
	Username        string
	FullName        string
	Email           string
	AvatarURL       string
	CoverImageURL   string
	SubscriberCount int64
	SubscribedTo    int64
	IsSubscribed    bool
}

// WatchHistoryEntry is one watched video in a user's history.
type WatchHistoryEntry struct {
	VideoID       int64
	Title         string
	ThumbnailURL  string
	OwnerUsername string
	WatchedAt     time.Time
}
