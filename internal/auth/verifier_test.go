package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/voicechat/internal/adapters/store/memory"
	"github.com/dkeye/voicechat/internal/core/mock"
	"github.com/dkeye/voicechat/internal/domain"
)

var secret = []byte("test-secret")

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	users := memory.New()
	require.NoError(t, users.PutUser(domain.User{ID: "alice", DisplayName: "Alice", Role: domain.RoleModerator}))
	return NewVerifier(secret, "voicechat", users)
}

func TestVerify_ValidCredential(t *testing.T) {
	v := newVerifier(t)
	tok, err := v.Issue("alice", time.Hour, time.Now())
	require.NoError(t, err)

	ident, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), ident.UserID)
	assert.Equal(t, "Alice", ident.DisplayName)
	assert.Equal(t, domain.RoleModerator, ident.Role)
	assert.Equal(t, "alice", ident.Claims["sub"])
}

func TestVerify_Rejections(t *testing.T) {
	v := newVerifier(t)
	now := time.Now()

	expired, err := v.Issue("alice", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	unknown, err := v.Issue("mallory", time.Hour, now)
	require.NoError(t, err)
	forged, err := NewVerifier([]byte("other"), "voicechat", nil).Issue("alice", time.Hour, now)
	require.NoError(t, err)
	wrongIssuer, err := NewVerifier(secret, "someone-else", nil).Issue("alice", time.Hour, now)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{StandardClaims: jwt.StandardClaims{
		Issuer: "voicechat", ExpiresAt: now.Add(time.Hour).Unix(),
	}}).SignedString(secret)
	require.NoError(t, err)

	cases := []struct {
		name       string
		credential string
		want       error
		reason     string
	}{
		{"missing", "", domain.ErrMissingCredential, ReasonNoCredential},
		{"blank", "   ", domain.ErrMissingCredential, ReasonNoCredential},
		{"garbage", "not.a.jwt", domain.ErrMalformedCredential, ReasonInvalidCredential},
		{"bad signature", forged, domain.ErrMalformedCredential, ReasonInvalidCredential},
		{"wrong issuer", wrongIssuer, domain.ErrMalformedCredential, ReasonInvalidCredential},
		{"no subject", noSubject, domain.ErrMalformedCredential, ReasonInvalidCredential},
		{"expired", expired, domain.ErrExpiredCredential, ReasonExpiredCredential},
		{"unknown subject", unknown, domain.ErrSubjectNotFound, ReasonSubjectNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tc.credential)
			require.ErrorIs(t, err, tc.want)
			reason, ok := Reason(err)
			assert.True(t, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestVerify_DirectoryOutageIsNotAClientError(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mock.NewMockUserDirectory(ctrl)
	users.EXPECT().User(gomock.Any(), domain.UserID("alice")).Return(domain.User{}, errors.New("connection refused"))

	v := NewVerifier(secret, "voicechat", users)
	tok, err := v.Issue("alice", time.Hour, time.Now())
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), tok)
	require.Error(t, err)
	_, ok := Reason(err)
	assert.False(t, ok)
}
