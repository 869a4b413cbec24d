package utils

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessResponse(t *testing.T) {
	data, err := json.Marshal(SuccessResponse("Booking successful!", map[string]int{"id": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"message":"Booking successful!","data":{"id":1}}`, string(data))
}

func TestErrorResponse(t *testing.T) {
	data, err := json.Marshal(ErrorResponse("Validation failed", "name is required"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"message":"Validation failed","error":"name is required"}`, string(data))
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
