package storage

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, driver: driver}, mock
}

func TestRebind(t *testing.T) {
	pg := conn{pg: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2,$3)", pg.rebind("SELECT a FROM t WHERE x = ? AND y IN (?,?)"))

	lite := conn{}
	assert.Equal(t, "WHERE x = ?", lite.rebind("WHERE x = ?"))
}

func TestPostgresGetStaffUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	rows := sqlmock.NewRows([]string{
		"id", "facility_id", "name", "name_kana", "nationality", "sector", "entry_date",
		"residence_expiry", "status", "visit_care_ready", "memo", "created_at", "updated_at",
	}).AddRow("s1", "", "Tran", "", "Vietnam", "kaigo", "2025-04-01",
		"2026-04-01", "active", int64(1), "", "2025-04-01T00:00:00Z", "2025-04-01T00:00:00Z")
	mock.ExpectQuery(regexp.QuoteMeta("FROM staff WHERE id = $1")).WithArgs("s1").WillReturnRows(rows)

	st, err := s.GetStaff("s1")
	require.NoError(t, err)
	assert.Equal(t, "Tran", st.Name)
	assert.True(t, st.VisitCareReady)
	assert.Equal(t, day(2026, 4, 1), st.ResidenceExpiry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListUsersByRole(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectQuery(regexp.QuoteMeta("role IN ($1,$2)")).
		WithArgs("owner", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "auth_id", "name", "email", "role", "status", "invited_by", "created_at", "updated_at"}).
			AddRow("u1", nil, "Sato", "sato@example.com", "owner", "active", "", "2025-01-01T00:00:00Z", "2025-01-01T00:00:00Z"))

	users, err := s.ListUsersByRole("owner", "admin")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "", users[0].AuthID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveChecklistRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).
		WithArgs("s1", "a", 1, sqlmock.AnyArg(), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs("s1", "b", 0, "", "", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveChecklist("s1", map[string]bool{"b": false, "a": true}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving checklist item b")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateResidenceRollsBackWhenHistoryFails(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT residence_expiry FROM staff WHERE id = ?")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"residence_expiry"}).AddRow("2026-04-01"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO residence_history")).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := s.UpdateResidenceExpiry("s1", day(2027, 4, 1), "u1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording residence history")
	assert.NoError(t, mock.ExpectationsWereMet(), "live expiry must not be updated without history")
}

func TestSetQualificationMissingStaffRollsBack(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO qualifications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE staff SET visit_care_ready = 1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.SetQualification(Qualification{StaffID: "ghost", QualificationID: "shoninsha", Acquired: true}, true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureIsReported(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("io error"))

	err := s.SaveChecklist("s1", map[string]bool{"a": true}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserWithJobRollsBackWhenEnqueueFails(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.CreateUserWithJob(User{Name: "N", Email: "n@example.com", Role: "staff"}, Job{Type: "send_email", PayloadJSON: "{}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueueing send_email job")
	assert.NoError(t, mock.ExpectationsWereMet())
}
