package services

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"spesa/internal/core"
	"spesa/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type countingInvalidator struct {
	users []int64
}

func (c *countingInvalidator) Invalidate(userID int64) {
	c.users = append(c.users, userID)
}

type env struct {
	repo       *storage.SQLiteRepository
	inv        *countingInvalidator
	users      *UserService
	expenses   *ExpenseService
	categories *CategoryService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	inv := &countingInvalidator{}
	return &env{
		repo:       repo,
		inv:        inv,
		users:      NewUserService(repo, nil, inv).WithBcryptCost(bcrypt.MinCost),
		expenses:   NewExpenseService(repo, inv).WithClock(func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }),
		categories: NewCategoryService(repo, inv),
	}
}

func (e *env) register(t *testing.T, name string) core.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), RegisterInput{Username: name, Email: name + "@example.com", Password: "secret-password"})
	require.NoError(t, err)
	return u
}

func (e *env) category(t *testing.T, userID int64, name string) core.Category {
	t.Helper()
	cats, err := e.categories.List(context.Background(), userID)
	require.NoError(t, err)
	for _, c := range cats {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("category %s not found", name)
	return core.Category{}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestExpenseService_CreateDefaultsDateToToday(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice")
	food := e.category(t, u.ID, "Food")

	got, err := e.expenses.Create(context.Background(), u.ID, ExpenseInput{
		CategoryID: idString(food.ID), Amount: "12,50", Description: " Lunch ",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", got.Date.String())
	assert.Equal(t, "12.50", core.FormatAmount(got.Amount))
	assert.Equal(t, "Lunch", got.Description)
	assert.Equal(t, "Food", got.CategoryName)
	assert.Equal(t, []int64{u.ID}, e.inv.users)
}

func TestExpenseService_DescriptionLineEndings(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice")
	food := e.category(t, u.ID, "Food")

	got, err := e.expenses.Create(context.Background(), u.ID, ExpenseInput{
		CategoryID: idString(food.ID), Amount: "8", Description: "Dinner\r\nwith friends\rafter work",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dinner\nwith friends\nafter work", got.Description)
}

func TestExpenseService_ValidationErrors(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice")
	food := idString(e.category(t, u.ID, "Food").ID)

	cases := []struct {
		in    ExpenseInput
		field string
	}{
		{ExpenseInput{CategoryID: food, Amount: "-1"}, "amount"},
		{ExpenseInput{CategoryID: food, Amount: "abc"}, "amount"},
		{ExpenseInput{CategoryID: food, Amount: "1", Date: "2024-13-01"}, "date"},
		{ExpenseInput{CategoryID: "x", Amount: "1"}, "category"},
		{ExpenseInput{Amount: "1"}, "category"},
	}
	for _, tc := range cases {
		_, err := e.expenses.Create(context.Background(), u.ID, tc.in)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "%+v: %v", tc.in, err)
		assert.Equal(t, tc.field, verr.Field)
	}
}

func TestExpenseService_RejectsForeignCategory(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	_, err := e.expenses.Create(context.Background(), alice.ID, ExpenseInput{
		CategoryID: idString(e.category(t, bob.ID, "Food").ID), Amount: "1",
	})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "category", verr.Field)

	list, err := e.expenses.List(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExpenseService_UpdateAndDeleteOwnOnly(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	ctx := context.Background()

	exp, err := e.expenses.Create(ctx, alice.ID, ExpenseInput{
		CategoryID: idString(e.category(t, alice.ID, "Food").ID), Amount: "5", Date: "2024-03-01",
	})
	require.NoError(t, err)

	_, err = e.expenses.Update(ctx, bob.ID, exp.ID, ExpenseInput{
		CategoryID: idString(e.category(t, bob.ID, "Food").ID), Amount: "1",
	})
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(e.expenses.Delete(ctx, bob.ID, exp.ID)))

	updated, err := e.expenses.Update(ctx, alice.ID, exp.ID, ExpenseInput{
		CategoryID: idString(e.category(t, alice.ID, "Bills").ID), Amount: "7.25", Date: "2024-03-02",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bills", updated.CategoryName)
	assert.Equal(t, "7.25", core.FormatAmount(updated.Amount))

	require.NoError(t, e.expenses.Delete(ctx, alice.ID, exp.ID))
	_, err = e.expenses.Get(ctx, alice.ID, exp.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestCategoryService_DuplicateIsValidationError(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice")

	_, err := e.categories.Create(context.Background(), u.ID, CategoryInput{Name: "Food"})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	_, err = e.categories.Create(context.Background(), u.ID, CategoryInput{Name: "  "})
	require.True(t, errors.As(err, &verr))

	c, err := e.categories.Create(context.Background(), u.ID, CategoryInput{Name: " Travel "})
	require.NoError(t, err)
	assert.Equal(t, "Travel", c.Name)
}

func TestCategoryService_DeleteAndReseed(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice")
	ctx := context.Background()

	cats, err := e.categories.List(ctx, u.ID)
	require.NoError(t, err)
	for _, c := range cats {
		require.NoError(t, e.categories.Delete(ctx, u.ID, c.ID))
	}
	require.NoError(t, e.categories.EnsureDefaults(ctx, u.ID))
	cats, err = e.categories.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, cats, len(core.DefaultCategories))
}
