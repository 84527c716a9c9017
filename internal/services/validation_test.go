package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type fundRequest struct {
	ShareCount int64  `validate:"required,gt=0"`
	Reference  string `validate:"required,min=2"`
	Email      string `validate:"required,email"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := fundRequest{
			ShareCount: 4,
			Reference:  "loan-17",
			Email:      "funder@example.com",
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("invalid struct - multiple failures", func(t *testing.T) {
		invalid := fundRequest{
			ShareCount: 0,   // not positive
			Reference:  "x", // too short
			// Email missing
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})

	t.Run("invalid email format", func(t *testing.T) {
		invalid := fundRequest{
			ShareCount: 4,
			Reference:  "loan-17",
			Email:      "invalid-email",
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "Email", validationErrors[0].Field())
		assert.Equal(t, "email", validationErrors[0].Tag())
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount int64 `json:"amount"`
	}

	t.Run("single object", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 500}`))
		w := httptest.NewRecorder()

		var p payload
		err := DecodeJSON(w, r, &p)
		assert.NoError(t, err)
		assert.Equal(t, int64(500), p.Amount)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 500, "extra": true}`))
		w := httptest.NewRecorder()

		var p payload
		assert.Error(t, DecodeJSON(w, r, &p))
	})

	t.Run("trailing object rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 500}{"amount": 1}`))
		w := httptest.NewRecorder()

		var p payload
		assert.Error(t, DecodeJSON(w, r, &p))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := fundRequest{
			ShareCount: 0,
			Reference:  "x",
			Email:      "invalid-email",
		}

		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.NotNil(t, response.Details)
		assert.Contains(t, response.Details, "ShareCount")
		assert.Contains(t, response.Details, "Reference")
		assert.Contains(t, response.Details, "Email")
	})
}
