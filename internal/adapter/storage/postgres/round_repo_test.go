package postgres

import (
	"context"
	"testing"
	"time"

	"token-sale-engine/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRound(id int64) *domain.Round {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Round{
		ID:            id,
		Rate:          100,
		HardCap:       1_000_000,
		MinBuy:        100,
		MaxBuy:        50_000,
		Raised:        0,
		StartTime:     now.Add(time.Hour),
		EndTime:       now.Add(48 * time.Hour),
		WhitelistOnly: false,
		Active:        false,
		Completed:     false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func roundTestColumns() []string {
	return []string{"id", "rate", "hard_cap", "min_buy", "max_buy", "raised", "start_time", "end_time",
		"whitelist_only", "active", "completed", "created_at", "updated_at"}
}

func roundRow(rd *domain.Round) *pgxmock.Rows {
	return pgxmock.NewRows(roundTestColumns()).AddRow(
		rd.ID, rd.Rate, rd.HardCap, rd.MinBuy, rd.MaxBuy, rd.Raised,
		rd.StartTime, rd.EndTime, rd.WhitelistOnly, rd.Active, rd.Completed,
		rd.CreatedAt, rd.UpdatedAt,
	)
}

func TestRoundRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)
	rd := newTestRound(1)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rounds").
		WithArgs(rd.ID, rd.Rate, rd.HardCap, rd.MinBuy, rd.MaxBuy, rd.Raised,
			rd.StartTime, rd.EndTime, rd.WhitelistOnly, rd.Active, rd.Completed,
			rd.CreatedAt, rd.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, rd)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)
	rd := newTestRound(3)

	mock.ExpectQuery("SELECT .+ FROM rounds WHERE id").
		WithArgs(rd.ID).
		WillReturnRows(roundRow(rd))

	result, err := repo.GetByID(context.Background(), rd.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, rd.ID, result.ID)
	assert.Equal(t, rd.HardCap, result.HardCap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM rounds WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(roundTestColumns()))

	result, err := repo.GetByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)
	rd := newTestRound(2)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM rounds WHERE id .+ FOR UPDATE").
		WithArgs(rd.ID).
		WillReturnRows(roundRow(rd))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByIDForUpdate(context.Background(), tx, rd.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, rd.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)
	rd := newTestRound(1)
	rd.Raised = 500
	rd.Active = true

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rounds SET raised").
		WithArgs(rd.Raised, rd.Active, rd.Completed, rd.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, rd)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)
	rd := newTestRound(42)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rounds SET raised").
		WithArgs(rd.Raised, rd.Active, rd.Completed, rd.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, rd)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "round not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRoundRepo(mock)
	r1 := newTestRound(1)
	r2 := newTestRound(2)

	rows := pgxmock.NewRows(roundTestColumns()).
		AddRow(r1.ID, r1.Rate, r1.HardCap, r1.MinBuy, r1.MaxBuy, r1.Raised,
			r1.StartTime, r1.EndTime, r1.WhitelistOnly, r1.Active, r1.Completed,
			r1.CreatedAt, r1.UpdatedAt).
		AddRow(r2.ID, r2.Rate, r2.HardCap, r2.MinBuy, r2.MaxBuy, r2.Raised,
			r2.StartTime, r2.EndTime, r2.WhitelistOnly, r2.Active, r2.Completed,
			r2.CreatedAt, r2.UpdatedAt)

	mock.ExpectQuery("SELECT .+ FROM rounds ORDER BY id").
		WillReturnRows(rows)

	result, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, int64(1), result[0].ID)
	assert.Equal(t, int64(2), result[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
