package util

import (
	"testing"
	"time"

	"exam_engine_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	user := &model.User{Email: "a@b.c", Role: model.Instructor}
	user.ID = 7

	token, err := GenerateJWT(user, "test-secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, model.Instructor, claims.Role)
	assert.Equal(t, "a@b.c", claims.Email)
}

func TestJWT_WrongSecretRejected(t *testing.T) {
	user := &model.User{Email: "a@b.c", Role: model.Learner}
	user.ID = 1

	token, err := GenerateJWT(user, "right-secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(token, "wrong-secret")
	assert.Error(t, err)
}

func TestJWT_ExpiredRejected(t *testing.T) {
	user := &model.User{Email: "a@b.c"}
	user.ID = 1

	token, err := GenerateJWT(user, "s", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, "s")
	assert.Error(t, err)
}
