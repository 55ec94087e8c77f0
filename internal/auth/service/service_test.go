package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	fc := clock.NewFakeClock(now)
	return NewWithSecret(zap.NewNop(), fc, []byte("test-secret"), time.Hour), fc
}

func TestIssueAndParse(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.Issue(context.Background(), authdomain.IssueRequest{
		UserID:  "u-1",
		Email:   "manager@example.com",
		Role:    authdomain.RoleManager,
		StoreID: "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)

	claims, err := svc.Parse(context.Background(), tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "1234", claims.StoreID)
	assert.Equal(t, authdomain.RoleManager, claims.Role)
	assert.Equal(t, "manager@example.com", claims.Email)
}

func TestParseRejectsExpired(t *testing.T) {
	svc, fc := newTestService(t)
	tok, err := svc.Issue(context.Background(), authdomain.IssueRequest{UserID: "u-1", Role: authdomain.RoleAssociate, StoreID: "1234"})
	require.NoError(t, err)

	fc.Advance(time.Hour)
	_, err = svc.Parse(context.Background(), tok.Token)
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	svc, fc := newTestService(t)
	other := NewWithSecret(zap.NewNop(), fc, []byte("another-secret"), time.Hour)
	tok, err := other.Issue(context.Background(), authdomain.IssueRequest{UserID: "u-1", Role: authdomain.RoleAdmin, StoreID: "1234"})
	require.NoError(t, err)

	_, err = svc.Parse(context.Background(), tok.Token)
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	svc, _ := newTestService(t)
	claims := &authdomain.Claims{
		UserID:  "u-1",
		Role:    authdomain.RoleAdmin,
		StoreID: "1234",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Parse(context.Background(), raw)
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestParseMissingAndGarbage(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Parse(context.Background(), "  ")
	assert.ErrorIs(t, err, authdomain.ErrMissingToken)

	_, err = svc.Parse(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestIssueValidatesClaims(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Issue(context.Background(), authdomain.IssueRequest{UserID: "u-1", Role: "owner", StoreID: "1234"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidClaims)

	_, err = svc.Issue(context.Background(), authdomain.IssueRequest{UserID: "u-1", Role: authdomain.RoleManager})
	assert.ErrorIs(t, err, authdomain.ErrInvalidClaims)
}

func TestNewRequiresSecretInProduction(t *testing.T) {
	_, err := New(Params{
		Cfg:   config.Config{Environment: "production"},
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(now),
	})
	assert.ErrorIs(t, err, authdomain.ErrMissingSecret)

	svc, err := New(Params{
		Cfg:   config.Config{Environment: "development"},
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(now),
	})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
