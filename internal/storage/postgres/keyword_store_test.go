package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/serpwatch/rankscan/internal/rank"
)

func TestListScanTargetsJoinsHistory(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT k.id, k.project_id, k.term, k.country").
		WithArgs("").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "project_id", "term", "country", "tenant_id", "domain", "scan_day",
		}).
			AddRow("kw-1", "proj-1", "best coffee maker", "USA", "tenant-1", "example.com", "Monday").
			AddRow("kw-2", "proj-2", "espresso beans", "Germany", "tenant-2", "beans.example", ""))

	pos := 4
	mock.ExpectQuery("FROM rank_history").
		WithArgs([]string{"kw-1", "kw-2"}).
		WillReturnRows(pgxmock.NewRows([]string{"keyword_id", "checked_at", "position"}).
			AddRow("kw-1", now.Add(-48*time.Hour), nil).
			AddRow("kw-1", now, &pos))

	targets, err := store.ListScanTargets(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, targets, 2)

	require.Equal(t, "tenant-1", targets[0].TenantID)
	require.Equal(t, "proj-1", targets[0].ProjectID)
	require.Equal(t, "example.com", targets[0].ProjectDomain)
	require.Equal(t, "Monday", targets[0].ScanDay)
	require.Len(t, targets[0].Keyword.History, 2)
	require.Nil(t, targets[0].Keyword.History[0].Position)
	require.Equal(t, 4, *targets[0].Keyword.History[1].Position)

	require.Empty(t, targets[1].Keyword.History)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListScanTargetsScopedToTenant(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT k.id, k.project_id, k.term, k.country").
		WithArgs("tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "project_id", "term", "country", "tenant_id", "domain", "scan_day",
		}))

	targets, err := store.ListScanTargets(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Empty(t, targets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendHistoryInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	point := rank.HistoryPoint{CheckedAt: now, Position: rank.Position(7)}

	mock.ExpectExec("INSERT INTO rank_history").
		WithArgs("tenant-1", "proj-1", "kw-1", point.CheckedAt, point.Position).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.AppendHistory(context.Background(), "tenant-1", "proj-1", "kw-1", point)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendHistoryRejectsForeignTenant(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	point := rank.HistoryPoint{CheckedAt: now, Position: nil}

	mock.ExpectExec("INSERT INTO rank_history").
		WithArgs("other-tenant", "proj-1", "kw-1", point.CheckedAt, point.Position).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.AppendHistory(context.Background(), "other-tenant", "proj-1", "kw-1", point)
	require.ErrorIs(t, err, ErrKeywordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateKeywordWritesSentinelInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	kw := rank.Keyword{ID: "kw-1", ProjectID: "proj-1", Term: "best coffee maker", Country: "USA"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO keywords").
		WithArgs("tenant-1", "proj-1", "kw-1", "best coffee maker", "USA").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO rank_history").
		WithArgs("kw-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.CreateKeyword(context.Background(), "tenant-1", kw, now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateKeywordValidatesInput(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Now()

	err = store.CreateKeyword(context.Background(), "tenant-1",
		rank.Keyword{ID: "kw", ProjectID: "p", Term: "ab", Country: "USA"}, now)
	require.Error(t, err)

	err = store.CreateKeyword(context.Background(), "tenant-1",
		rank.Keyword{ID: "kw", ProjectID: "p", Term: "valid term", Country: "Narnia"}, now)
	require.Error(t, err)
}

func TestNewKeywordStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewKeywordStoreWithPool(nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT 1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectQuery("SELECT 1").
		WillReturnError(errors.New("connection refused"))
	require.Error(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendHistoryPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO rank_history").
		WithArgs("t", "p", "k", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = store.AppendHistory(context.Background(), "t", "p", "k", rank.HistoryPoint{CheckedAt: time.Now()})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
