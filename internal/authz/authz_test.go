package authz

import (
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, sub string, ttl time.Duration) string {
	t.Helper()
	tok, err := SignAccessToken(sub, secret, ttl)
	require.NoError(t, err)
	return tok
}

func TestVerifyToken(t *testing.T) {
	v := Verifier{Secret: secret}

	sub, err := v.VerifyToken(sign(t, "user-1", DefaultTokenTTL))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = v.VerifyToken(sign(t, "user-1", -time.Minute))
	assert.ErrorIs(t, err, ErrUnauthorized, "expired")

	other, err := SignAccessToken("user-1", []byte("other"), time.Hour)
	require.NoError(t, err)
	_, err = v.VerifyToken(other)
	assert.ErrorIs(t, err, ErrUnauthorized, "wrong secret")

	_, err = v.VerifyToken(sign(t, "", time.Hour))
	assert.ErrorIs(t, err, ErrUnauthorized, "no subject")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.VerifyToken(none)
	assert.ErrorIs(t, err, ErrUnauthorized, "alg none")

	_, err = Verifier{}.VerifyToken(sign(t, "user-1", time.Hour))
	assert.ErrorIs(t, err, ErrUnauthorized, "no secret configured")
}

func TestFromAPIGWv2(t *testing.T) {
	tok := sign(t, "user-1", time.Hour)

	tests := []struct {
		name    string
		v       Verifier
		req     events.APIGatewayV2HTTPRequest
		want    string
		wantErr bool
	}{
		{
			name: "bearer header",
			v:    Verifier{Secret: secret},
			req:  events.APIGatewayV2HTTPRequest{Headers: map[string]string{"authorization": "Bearer " + tok}},
			want: "user-1",
		},
		{
			name: "lower case scheme",
			v:    Verifier{Secret: secret},
			req:  events.APIGatewayV2HTTPRequest{Headers: map[string]string{"Authorization": "bearer " + tok}},
			want: "user-1",
		},
		{
			name:    "missing header",
			v:       Verifier{Secret: secret},
			req:     events.APIGatewayV2HTTPRequest{},
			wantErr: true,
		},
		{
			name:    "token without scheme",
			v:       Verifier{Secret: secret},
			req:     events.APIGatewayV2HTTPRequest{Headers: map[string]string{"Authorization": tok}},
			wantErr: true,
		},
		{
			name: "jwt authorizer claims",
			v:    Verifier{Secret: secret},
			req: events.APIGatewayV2HTTPRequest{RequestContext: events.APIGatewayV2HTTPRequestContext{
				Authorizer: &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
					JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{Claims: map[string]string{"sub": "cognito-9"}},
				},
			}},
			want: "cognito-9",
		},
		{
			name: "dev bypass",
			v:    Verifier{DevBypass: true},
			req:  events.APIGatewayV2HTTPRequest{Headers: map[string]string{"X-User-Sub": "dev"}},
			want: "dev",
		},
		{
			name:    "bypass header ignored when disabled",
			v:       Verifier{Secret: secret},
			req:     events.APIGatewayV2HTTPRequest{Headers: map[string]string{"x-user-sub": "dev"}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.v.FromAPIGWv2(tc.req)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
