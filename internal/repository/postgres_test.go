package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/model"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestLogQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	entry := &model.QueryLog{
		QueryID:         "q1",
		SessionID:       "s1",
		Query:           "free wifi near City Hall",
		NormalizedQuery: "free wi-fi near City Hall",
		PrimaryService:  "wi-fi",
		LocationText:    "city hall",
		ExpandedRadius:  true,
		ResultCount:     2,
		Organizations:   model.StringList{"Widener Library", "Free Library"},
		TotalTokens:     0,
		ResponseTimeMs:  42,
	}

	mock.ExpectExec("INSERT INTO query_logs").
		WithArgs("q1", "s1", "free wifi near City Hall", "free wi-fi near City Hall", "wi-fi", "city hall",
			false, true, false, 2, sqlmock.AnyArg(), "", 0, 42).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.LogQuery(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO query_logs").WillReturnError(errors.New("connection reset"))

	err := repo.LogQuery(context.Background(), &model.QueryLog{QueryID: "q1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to log query")
}

func TestGetQueryLog(t *testing.T) {
	repo, mock := newMockRepo(t)

	columns := []string{
		"query_id", "session_id", "query", "normalized_query", "primary_service", "location_text",
		"used_memory", "expanded_radius", "closest_fallback", "result_count", "organizations",
		"failure_reason", "total_tokens", "response_time_ms",
	}
	mock.ExpectQuery("SELECT (.+) FROM query_logs").
		WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"q1", "s1", "printer", "printer", "print", "",
			false, false, true, 1, []byte(`["Free Library"]`),
			"", 12, 30,
		))

	entry, err := repo.GetQueryLog(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "print", entry.PrimaryService)
	assert.True(t, entry.ClosestFallback)
	assert.Equal(t, model.StringList{"Free Library"}, entry.Organizations)
	assert.Equal(t, int64(30), entry.ResponseTimeMs)

	mock.ExpectQuery("SELECT (.+) FROM query_logs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err = repo.GetQueryLog(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogFeedback(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO query_feedback").
		WithArgs("q1", "Free Library", "call").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.LogFeedback(context.Background(), "q1", "Free Library", "call"))

	mock.ExpectExec("INSERT INTO query_feedback").
		WithArgs("missing", "Free Library", "call").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.LogFeedback(context.Background(), "missing", "Free Library", "call")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS query_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
