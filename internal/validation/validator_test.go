package validation

import (
	"errors"
	"testing"

	"spesa/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expenseForm struct {
	Amount string `json:"amount" validate:"required,amount"`
	Date   string `json:"date" validate:"omitempty,isodate"`
	Name   string `json:"name" validate:"notblank,max=10"`
}

func TestStruct_Valid(t *testing.T) {
	err := New().Struct(expenseForm{Amount: "12,50", Date: "2024-03-01", Name: "Food"})
	assert.NoError(t, err)
}

func TestStruct_ReportsFieldByJSONName(t *testing.T) {
	cases := []struct {
		form  expenseForm
		field string
	}{
		{expenseForm{Amount: "-3", Name: "x"}, "amount"},
		{expenseForm{Amount: "1.001", Name: "x"}, "amount"},
		{expenseForm{Amount: "1", Date: "01/03/2024", Name: "x"}, "date"},
		{expenseForm{Amount: "1", Name: "   "}, "name"},
		{expenseForm{Amount: "1", Name: "far too long name"}, "name"},
	}
	for _, tc := range cases {
		err := New().Struct(tc.form)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "expected ValidationError for %+v", tc.form)
		assert.Equal(t, tc.field, verr.Field)
		assert.NotEmpty(t, verr.Message)
	}
}

func TestUsernameRule(t *testing.T) {
	type form struct {
		Username string `json:"username" validate:"username"`
	}
	assert.NoError(t, Default().Struct(form{Username: "alice.b"}))
	assert.Error(t, Default().Struct(form{Username: "a b"}))
	assert.Error(t, Default().Struct(form{Username: "ab"}))
}
