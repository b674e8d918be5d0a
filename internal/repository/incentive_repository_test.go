package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-tracker-api/internal/models"
)

func incentiveRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "agent_id", "student_id", "course", "amount", "status", "created_at"}).
		AddRow("i1", "AG-7", "s1", "MBA Finance", 2500.0, string(models.IncentiveUnpaid), now)
}

func TestListIncentivesByAgent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, agent_id, student_id, course, amount, status, created_at FROM incentives WHERE 1=1 AND agent_id = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("AG-7").
		WillReturnRows(incentiveRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM incentives WHERE 1=1 AND agent_id = $1")).
		WithArgs("AG-7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	incentives, total, err := repo.List(context.Background(), models.IncentiveFilter{AgentID: "AG-7"})
	require.NoError(t, err)
	assert.Len(t, incentives, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 2500.0, incentives[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIncentive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	mock.ExpectExec("INSERT INTO incentives").WillReturnResult(sqlmock.NewResult(1, 1))

	incentive := &models.Incentive{AgentID: "AG-7", StudentID: "s1", Course: "MBA Finance", Amount: 2500, Status: models.IncentiveUnpaid}
	err := repo.Create(context.Background(), incentive)
	require.NoError(t, err)
	assert.NotEmpty(t, incentive.ID)
	assert.False(t, incentive.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateIncentiveStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE incentives SET status = $2 WHERE id = $1")).
		WithArgs("i1", models.IncentivePaid).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "i1", models.IncentivePaid))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStudentIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM incentives")).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("s1").AddRow("s2"))

	ids, err := repo.ListStudentIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	_, ok := ids["s1"]
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByStudentIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	mock.ExpectQuery("SELECT .* FROM incentives WHERE student_id").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudentID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalsScopedToAgent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	rows := sqlmock.NewRows([]string{"total_earned", "total_pending"}).AddRow(5000.0, 2500.0)
	mock.ExpectQuery("SELECT\\s+COALESCE\\(SUM\\(amount\\) FILTER \\(WHERE status = 'paid'\\), 0\\) AS total_earned").
		WithArgs("AG-7").
		WillReturnRows(rows)

	summary, err := repo.Totals(context.Background(), "AG-7")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, summary.TotalEarned)
	assert.Equal(t, 2500.0, summary.TotalPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalsByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncentiveRepository(db)

	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow(string(models.IncentivePaid), 12500.0).
		AddRow(string(models.IncentiveUnpaid), 5000.0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COALESCE(SUM(amount), 0) AS total FROM incentives GROUP BY status")).
		WillReturnRows(rows)

	totals, err := repo.TotalsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12500.0, totals[models.IncentivePaid])
	assert.Equal(t, 5000.0, totals[models.IncentiveUnpaid])
	assert.NoError(t, mock.ExpectationsWereMet())
}
