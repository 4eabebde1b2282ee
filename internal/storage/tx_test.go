package storage

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"spesa/internal/core"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateExpense_RollsBackOnForeignCategory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM categories WHERE id = ?`)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(2)))
	mock.ExpectRollback()

	repo := NewFromDB(db)
	_, err = repo.CreateExpense(context.Background(), core.Expense{
		UserID: 1, CategoryID: 9, Amount: core.FromCents(100), Date: core.NewDate(2024, 1, 1),
	})

	assert.ErrorIs(t, err, core.ErrCategoryOwnership)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrites_RejectInvalidRecordsWithoutQuerying(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewFromDB(db)
	ctx := context.Background()
	valid := core.Expense{UserID: 1, CategoryID: 2, Amount: core.FromCents(100), Date: core.NewDate(2024, 1, 1)}

	noOwner := valid
	noOwner.UserID = 0
	_, err = repo.CreateExpense(ctx, noOwner)
	assert.ErrorIs(t, err, core.ErrMissingOwner)

	noCategory := valid
	noCategory.CategoryID = 0
	_, err = repo.CreateExpense(ctx, noCategory)
	assert.ErrorIs(t, err, core.ErrMissingCategory)

	negative := valid
	negative.Amount = core.FromCents(-1)
	_, err = repo.CreateExpense(ctx, negative)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	noDate := valid
	noDate.ID, noDate.Date = 7, core.Date{}
	assert.ErrorIs(t, repo.UpdateExpense(ctx, noDate), core.ErrInvalidDate)

	_, err = repo.CreateCategory(ctx, 1, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyCategory)
	_, err = repo.CreateCategory(ctx, 1, strings.Repeat("x", 101))
	assert.ErrorIs(t, err, core.ErrCategoryTooLong)
	_, err = repo.CreateCategory(ctx, 0, "Travel")
	assert.ErrorIs(t, err, core.ErrMissingOwner)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCategory_RollsBackWhenExpenseDeleteFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM categories WHERE id = ?`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM expenses WHERE category_id = ? AND user_id = ?`)).
		WithArgs(int64(3), int64(1)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	repo := NewFromDB(db)
	err = repo.DeleteCategory(context.Background(), 1, 3)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_RollsBackWhenSeedingFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO categories (user_id, name) VALUES (?, ?)`)).
		WithArgs(int64(5), "Food").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO categories (user_id, name) VALUES (?, ?)`)).
		WithArgs(int64(5), "Transport").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	repo := NewFromDB(db)
	_, err = repo.CreateUser(context.Background(), "alice", "", "hash")

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
