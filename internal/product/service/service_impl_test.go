package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/migration"
	"github.com/smallbiznis/stripesync/internal/product/domain"
	"github.com/smallbiznis/stripesync/internal/product/repository"
	"github.com/smallbiznis/stripesync/internal/reconcile"
	dbpkg "github.com/smallbiznis/stripesync/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbpkg.NewTest(t, migration.SQLiteSchema()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(t0),
	}).(*Service), db
}

func TestUpsertProductLifecycle(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	req := domain.UpsertRequest{
		OrgID:           5,
		StripeProductID: "prod_1",
		Name:            "Pro Plan Deluxe",
		Active:          true,
		Images:          []string{"https://cdn.example.com/a.png", " "},
		Metadata:        map[string]string{"tier": "pro"},
		SourceUpdatedAt: t0,
	}

	outcome, err := svc.Upsert(ctx, req)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeCreated, outcome)

	stored, err := repository.Provide().FindByStripeID(ctx, db, 5, "prod_1", false)
	require.NoError(t, err)
	require.Equal(t, "pro-plan-deluxe", stored.Slug)
	require.Equal(t, []string{"https://cdn.example.com/a.png"}, []string(stored.Images))
	require.Equal(t, "pro", stored.Metadata["tier"])

	outcome, err = svc.Upsert(ctx, req)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeUpdated, outcome)

	stale := req
	stale.Name = "Old Name"
	stale.SourceUpdatedAt = t0.Add(-time.Hour)
	outcome, err = svc.Upsert(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeStale, outcome)

	stored, err = repository.Provide().FindByStripeID(ctx, db, 5, "prod_1", false)
	require.NoError(t, err)
	require.Equal(t, "Pro Plan Deluxe", stored.Name)

	del := domain.DeleteRequest{OrgID: 5, StripeProductID: "prod_1", SourceUpdatedAt: t0.Add(time.Hour)}
	outcome, err = svc.Delete(ctx, del)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeDeleted, outcome)

	outcome, err = svc.Delete(ctx, del)
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeMissing, outcome)
}

func TestDeletedProductIsNotRecreated(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	req := domain.UpsertRequest{OrgID: 5, StripeProductID: "prod_2", Name: "Basic", Active: true, SourceUpdatedAt: t0}
	_, err := svc.Upsert(ctx, req)
	require.NoError(t, err)

	outcome, err := svc.Delete(ctx, domain.DeleteRequest{OrgID: 5, StripeProductID: "prod_2", SourceUpdatedAt: t0.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeDeleted, outcome)

	cases := []struct {
		at   time.Time
		want reconcile.Outcome
	}{
		{t0.Add(time.Minute), reconcile.OutcomeStale},
		{t0.Add(2 * time.Minute), reconcile.OutcomeUnchanged},
		{t0.Add(time.Hour), reconcile.OutcomeUnchanged},
	}
	for _, tc := range cases {
		late := req
		late.Name = "Basic Revived"
		late.SourceUpdatedAt = tc.at
		outcome, err := svc.Upsert(ctx, late)
		require.NoError(t, err)
		require.Equal(t, tc.want, outcome)
	}

	stored, err := repository.Provide().FindByStripeID(ctx, db, 5, "prod_2", false)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.DeletedAt)
	require.Equal(t, "Basic", stored.Name)
	require.False(t, stored.Active)
	require.True(t, t0.Add(2*time.Minute).Equal(stored.SourceUpdatedAt))
}

func TestDeleteProductIgnoresOlderEvent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	_, err := svc.Upsert(ctx, domain.UpsertRequest{OrgID: 5, StripeProductID: "prod_3", Name: "Team", SourceUpdatedAt: t0})
	require.NoError(t, err)

	outcome, err := svc.Delete(ctx, domain.DeleteRequest{OrgID: 5, StripeProductID: "prod_3", SourceUpdatedAt: t0.Add(-time.Minute)})
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeStale, outcome)

	stored, err := repository.Provide().FindByStripeID(ctx, db, 5, "prod_3", false)
	require.NoError(t, err)
	require.Nil(t, stored.DeletedAt)

	_, err = svc.Delete(ctx, domain.DeleteRequest{OrgID: 5, StripeProductID: "prod_3"})
	require.ErrorIs(t, err, domain.ErrInvalidTimestamp)
}

func TestUpsertProductValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Upsert(context.Background(), domain.UpsertRequest{OrgID: 5, StripeProductID: "prod_1", SourceUpdatedAt: t0})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}
