package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	identitydomain "github.com/smallbiznis/stripesync/internal/identity/domain"
	"github.com/smallbiznis/stripesync/internal/identity/local"
	"github.com/smallbiznis/stripesync/internal/migration"
	"github.com/smallbiznis/stripesync/internal/provisioning/domain"
	"github.com/smallbiznis/stripesync/internal/provisioning/repository"
	dbpkg "github.com/smallbiznis/stripesync/pkg/db"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrgID = snowflake.ID(42)

func newTestService(t *testing.T, provider identitydomain.Provider) (*Service, *gorm.DB) {
	t.Helper()
	db := dbpkg.NewTest(t, migration.SQLiteSchema()...)
	fc := clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	if provider == nil {
		provider = local.NewProvider(db, zap.NewNop(), "http://localhost", fc)
	}
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Repo:     repository.Provide(),
		Identity: provider,
		Clock:    fc,
	}).(*Service)
	return svc, db
}

func countProfiles(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.Profile{}).Count(&n).Error)
	return n
}

func TestEnsureUserCreatesIdentityAndProfile(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{OrgID: testOrgID, Email: "Jane@Example.com", DisplayName: "Jane"})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NotEmpty(t, res.UserID)
	if len(res.TempPassword) != 16 {
		t.Fatalf("expected 16 char temp password, got %d", len(res.TempPassword))
	}

	profile, err := repository.Provide().FindByID(ctx, db, res.UserID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "jane@example.com", profile.Email)
	require.Equal(t, domain.RoleUser, profile.Role)
	require.Equal(t, testOrgID, profile.OrgID)

	var links int64
	require.NoError(t, db.Model(&identitydomain.Link{}).Count(&links).Error)
	require.EqualValues(t, 1, links)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{OrgID: testOrgID, Email: "sam@example.com", DisplayName: "Sam"})
	require.NoError(t, err)

	second, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{OrgID: testOrgID, Email: "SAM@example.com", DisplayName: "Sam"})
	require.NoError(t, err)
	require.Equal(t, first.UserID, second.UserID)
	require.False(t, second.Created)
	require.Empty(t, second.TempPassword)
	require.EqualValues(t, 1, countProfiles(t, db))
}

func TestEnsureUserConcurrentCallsConverge(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	const workers = 4
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{OrgID: testOrgID, Email: "race@example.com", DisplayName: "Race"})
			ids[i], errs[i] = res.UserID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
	require.EqualValues(t, 1, countProfiles(t, db))
}

func TestEnsureUserRejectsEmptyEmail(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.EnsureUser(context.Background(), domain.EnsureUserRequest{OrgID: testOrgID, Email: "  "})
	require.ErrorIs(t, err, domain.ErrInvalidEmail)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) LookupByEmail(ctx context.Context, email string) (*identitydomain.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*identitydomain.User)
	return user, args.Error(1)
}

func (m *mockProvider) CreateUser(ctx context.Context, req identitydomain.CreateUserRequest) (*identitydomain.User, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*identitydomain.User)
	return user, args.Error(1)
}

func (m *mockProvider) SignUp(ctx context.Context, req identitydomain.SignUpRequest) (*identitydomain.User, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*identitydomain.User)
	return user, args.Error(1)
}

func (m *mockProvider) GenerateLink(ctx context.Context, req identitydomain.GenerateLinkRequest) (*identitydomain.Link, error) {
	args := m.Called(ctx, req)
	link, _ := args.Get(0).(*identitydomain.Link)
	return link, args.Error(1)
}

func TestEnsureUserFallsBackToSignUp(t *testing.T) {
	provider := &mockProvider{}
	svc, db := newTestService(t, provider)
	ctx := context.Background()

	provider.On("LookupByEmail", mock.Anything, "pat@example.com").Return(nil, identitydomain.ErrUserNotFound).Once()
	provider.On("CreateUser", mock.Anything, mock.Anything).Return(nil, errors.New("admin api disabled")).Once()
	provider.On("SignUp", mock.Anything, mock.MatchedBy(func(req identitydomain.SignUpRequest) bool {
		return req.Email == "pat@example.com" && len(req.Password) == 16
	})).Return(&identitydomain.User{ID: "user-pat", Email: "pat@example.com"}, nil).Once()
	provider.On("GenerateLink", mock.Anything, mock.Anything).Return(nil, errors.New("smtp down")).Once()

	res, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{OrgID: testOrgID, Email: "pat@example.com"})
	require.NoError(t, err)
	require.Equal(t, "user-pat", res.UserID)
	require.True(t, res.Created)
	require.EqualValues(t, 1, countProfiles(t, db))
	provider.AssertExpectations(t)
}

func TestEnsureUserSignUpConflictRelooksUp(t *testing.T) {
	provider := &mockProvider{}
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	provider.On("LookupByEmail", mock.Anything, "lee@example.com").Return(nil, errors.New("timeout")).Once()
	provider.On("CreateUser", mock.Anything, mock.Anything).Return(nil, identitydomain.ErrUserExists).Once()
	provider.On("SignUp", mock.Anything, mock.Anything).Return(nil, identitydomain.ErrUserExists).Once()
	provider.On("LookupByEmail", mock.Anything, "lee@example.com").Return(&identitydomain.User{ID: "user-lee", Email: "lee@example.com"}, nil).Once()

	res, err := svc.EnsureUser(ctx, domain.EnsureUserRequest{OrgID: testOrgID, Email: "lee@example.com"})
	require.NoError(t, err)
	require.Equal(t, "user-lee", res.UserID)
	require.False(t, res.Created)
	require.Empty(t, res.TempPassword)
	provider.AssertNotCalled(t, "GenerateLink", mock.Anything, mock.Anything)
}

func TestEnsureUserSignUpFailureIsProvisioningFailed(t *testing.T) {
	provider := &mockProvider{}
	svc, db := newTestService(t, provider)

	provider.On("LookupByEmail", mock.Anything, mock.Anything).Return(nil, identitydomain.ErrUserNotFound)
	provider.On("CreateUser", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	provider.On("SignUp", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := svc.EnsureUser(context.Background(), domain.EnsureUserRequest{OrgID: testOrgID, Email: "x@example.com"})
	require.ErrorIs(t, err, domain.ErrProvisioningFailed)
	require.EqualValues(t, 0, countProfiles(t, db))
}
