package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/media"
	"github.com/streamhive/account-service/internal/password"
	"github.com/streamhive/account-service/internal/service"
	"github.com/streamhive/account-service/internal/token"
)

const (
	testAccessSecret  = "unit-test-access-secret-0123456789abcdef"
	testRefreshSecret = "unit-test-refresh-secret-0123456789abcdef"
	testIssuer        = "accounts-test"
)

func newTestCodec() *token.Codec {
	return token.NewCodec(testAccessSecret, testRefreshSecret, time.Minute, time.Hour, testIssuer)
}

func newTestService(t *testing.T, users *memoryUserRepo) (*service.AccountService, *token.Codec) {
	t.Helper()
	codec := newTestCodec()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	hasher := password.NewHasher(4) // low cost keeps the suite fast
	return service.NewAccountService(users, &memoryProfileRepo{}, codec, hasher, node, zap.NewNop()), codec
}

func registerInput(username, email string) service.RegisterInput {
	return service.RegisterInput{
		Username: username,
		Email:    email,
		FullName: "Test User",
		Password: "initial-pass",
		Avatar:   media.Resource{URL: "https://cdn.example.com/avatar.png"},
	}
}

func TestRegisterReturnsSanitizedUser(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)

	view, err := svc.Register(context.Background(), registerInput("chai", "chai@example.com"))
	require.NoError(t, err)
	require.Equal(t, "chai", view.Username)
	require.NotZero(t, view.ID)

	stored, ok := users.byUsername("chai")
	require.True(t, ok)
	require.NotEmpty(t, stored.PasswordHash)

	payload, err := json.Marshal(view)
	require.NoError(t, err)
	require.NotContains(t, string(payload), "initial-pass")
	require.NotContains(t, string(payload), stored.PasswordHash)
	require.NotContains(t, string(payload), "refreshToken")
	require.NotContains(t, string(payload), "password")
}

func TestRegisterValidation(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	missingAvatar := registerInput("a", "a@example.com")
	missingAvatar.Avatar = media.Resource{}
	_, err := svc.Register(ctx, missingAvatar)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	badEmail := registerInput("b", "not-an-email")
	_, err = svc.Register(ctx, badEmail)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	empty := registerInput("", "c@example.com")
	_, err = svc.Register(ctx, empty)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("first", "shared@example.com"))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("second", "shared@example.com"))
	require.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestRegisterFoldsCaseAndWhitespace(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)

	view, err := svc.Register(context.Background(), registerInput("  MixedCase  ", " User@Example.COM "))
	require.NoError(t, err)
	require.Equal(t, "mixedcase", view.Username)
	require.Equal(t, "user@example.com", view.Email)
}

func TestLoginRotatesRefreshSlot(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	view, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)

	first, err := svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, first.AccessToken)
	require.Equal(t, first.RefreshToken, users.slot(view.ID))

	second, err := svc.Login(ctx, service.LoginInput{Email: "chai@example.com", Password: "initial-pass"})
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, second.RefreshToken, users.slot(view.ID))
}

func TestLoginFailures(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, service.LoginInput{Username: "chai", Password: "wrong"})
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = svc.Login(ctx, service.LoginInput{Username: "ghost", Password: "whatever"})
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = svc.Login(ctx, service.LoginInput{Password: "whatever"})
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRefreshReplayIsRejected(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)
	login, err := svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The first token passed verification once; replaying it must fail the
	// slot equality check.
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	// The newest token still works.
	_, err = svc.Refresh(ctx, refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	view, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)
	login, err := svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, view.ID))
	require.NoError(t, svc.Logout(ctx, view.ID)) // idempotent

	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
}

func TestRefreshRejectsExpiredAndForeignTokens(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	view, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, "")
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	// Expired but correctly signed: same keys, negative TTL.
	expiredCodec := token.NewCodec(testAccessSecret, testRefreshSecret, -time.Minute, -time.Minute, testIssuer)
	expired, err := expiredCodec.SignRefresh(view.ID)
	require.NoError(t, err)
	users.setSlot(view.ID, expired)
	_, err = svc.Refresh(ctx, expired)
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	// Signed with the wrong key class.
	login, err := svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, login.AccessToken)
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
}

func TestChangePassword(t *testing.T) {
	users := newMemoryUserRepo()
	svc, _ := newTestService(t, users)
	ctx := context.Background()

	view, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)
	_, err = svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, view.ID, "wrong-old", "Xk9!abc")
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	require.NoError(t, svc.ChangePassword(ctx, view.ID, "initial-pass", "Xk9!abc"))

	_, err = svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = svc.Login(ctx, service.LoginInput{Username: "chai", Password: "Xk9!abc"})
	require.NoError(t, err)

	// Policy: a password change does not revoke existing sessions. The
	// login above already rotated the slot, so use the latest token.
	latest := users.slot(view.ID)
	_, err = svc.Refresh(ctx, latest)
	require.NoError(t, err)
}

func TestConcurrentRefreshLastWriterWins(t *testing.T) {
	users := newMemoryUserRepo()
	stale := &staleSlotRepo{memoryUserRepo: users}
	codec := newTestCodec()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.NewAccountService(stale, &memoryProfileRepo{}, codec, password.NewHasher(4), node, zap.NewNop())
	ctx := context.Background()

	view, err := svc.Register(ctx, registerInput("chai", "chai@example.com"))
	require.NoError(t, err)
	login, err := svc.Login(ctx, service.LoginInput{Username: "chai", Password: "initial-pass"})
	require.NoError(t, err)

	// Freeze slot reads at the shared pre-race value so both refreshes pass
	// the equality check before either write lands.
	stale.freeze(login.RefreshToken)

	first, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	second, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	stale.thaw()

	// Only the last writer's token survived the race.
	require.Equal(t, second.RefreshToken, users.slot(view.ID))
	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	_, err = svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestChannelProfileAndWatchHistory(t *testing.T) {
	users := newMemoryUserRepo()
	codec := newTestCodec()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	profiles := &memoryProfileRepo{
		profiles: map[string]domain.ChannelProfile{
			"chai": {UserID: 1, Username: "chai", SubscriberCount: 12, SubscribedTo: 3, IsSubscribed: true},
		},
		history: []domain.WatchHistoryEntry{{VideoID: 9, Title: "Intro", OwnerUsername: "chai"}},
	}
	svc := service.NewAccountService(users, profiles, codec, password.NewHasher(4), node, zap.NewNop())
	ctx := context.Background()

	profile, err := svc.ChannelProfile(ctx, "Chai", 2)
	require.NoError(t, err)
	require.Equal(t, int64(12), profile.SubscriberCount)
	require.True(t, profile.IsSubscribed)

	_, err = svc.ChannelProfile(ctx, "ghost", 2)
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))

	history, err := svc.WatchHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "Intro", history[0].Title)
}

// memoryUserRepo is an in-memory UserRepository for unit tests.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]domain.User)}
}

func (m *memoryUserRepo) byUsername(username string) (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, true
		}
	}
	return domain.User{}, false
}

func (m *memoryUserRepo) slot(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].RefreshToken
}

func (m *memoryUserRepo) setSlot(id int64, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.RefreshToken = value
	m.users[id] = u
}

func (m *memoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memoryUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *memoryUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUserRepo) UpdateAccount(ctx context.Context, id int64, fullName, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	u.FullName = fullName
	u.Email = email
	u.UpdatedAt = time.Now()
	m.users[id] = u
	return u, nil
}

func (m *memoryUserRepo) UpdateAvatar(ctx context.Context, id int64, url string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	u.AvatarURL = url
	m.users[id] = u
	return u, nil
}

func (m *memoryUserRepo) UpdateCoverImage(ctx context.Context, id int64, url string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	u.CoverImageURL = url
	m.users[id] = u
	return u, nil
}

func (m *memoryUserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memoryUserRepo) GetRefreshToken(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return u.RefreshToken, nil
}

func (m *memoryUserRepo) SetRefreshToken(ctx context.Context, id int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.RefreshToken = value
	m.users[id] = u
	return nil
}

func (m *memoryUserRepo) ClearRefreshToken(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.RefreshToken = ""
	m.users[id] = u
	return nil
}

// staleSlotRepo serves frozen slot reads to simulate two racing refreshes
// that both observe the pre-rotation value.
type staleSlotRepo struct {
	*memoryUserRepo
	mu     sync.Mutex
	frozen string
	active bool
}

func (s *staleSlotRepo) freeze(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = value
	s.active = true
}

func (s *staleSlotRepo) thaw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *staleSlotRepo) GetRefreshToken(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	active, frozen := s.active, s.frozen
	s.mu.Unlock()
	if active {
		return frozen, nil
	}
	return s.memoryUserRepo.GetRefreshToken(ctx, id)
}

// memoryProfileRepo is an in-memory ProfileRepository.
type memoryProfileRepo struct {
	profiles map[string]domain.ChannelProfile
	history  []domain.WatchHistoryEntry
}

func (m *memoryProfileRepo) GetChannelProfile(ctx context.Context, username string, viewerID int64) (domain.ChannelProfile, error) {
	p, ok := m.profiles[username]
	if !ok {
		return domain.ChannelProfile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memoryProfileRepo) GetWatchHistory(ctx context.Context, userID int64) ([]domain.WatchHistoryEntry, error) {
	return m.history, nil
}
