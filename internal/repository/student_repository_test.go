package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var studentCols = []string{"id", "class_id", "full_name", "user_id", "parent_user_id", "active"}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(studentCols).AddRow("s1", "7A", "Ana", "u1", nil, true))

	student, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "7A", student.ClassID)
	require.NotNil(t, student.UserID)
	assert.Equal(t, "u1", *student.UserID)
	assert.Nil(t, student.ParentUserID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStudentRepositoryListByClassOrdersByName(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY full_name ASC, id ASC")).
		WithArgs("7A").
		WillReturnRows(sqlmock.NewRows(studentCols).
			AddRow("s2", "7A", "Ana", nil, nil, true).
			AddRow("s1", "7A", "Budi", nil, "p1", true))

	students, err := repo.ListByClass(context.Background(), "7A")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "s2", students[0].ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT class_id FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}).AddRow("7A").AddRow("8B"))
	ids, err := repo.ListClassIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"7A", "8B"}, ids)
}
