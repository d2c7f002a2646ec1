package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	require.NoError(t, ConfigureJWT("utils-test-secret-0123456789", "school-resources-test"))

	tok, err := GenerateAccessToken(42, "m.curie", "lab_technician", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(tok)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "m.curie", claims.Username)
	require.Equal(t, "lab_technician", claims.Role)
}

func TestValidateToken_Rejects(t *testing.T) {
	require.NoError(t, ConfigureJWT("utils-test-secret-0123456789", "issuer-a"))
	tok, err := GenerateAccessToken(1, "a", "teacher", time.Minute)
	require.NoError(t, err)

	require.NoError(t, ConfigureJWT("utils-test-secret-0123456789", "issuer-b"))
	_, err = ValidateToken(tok)
	require.Error(t, err, "issuer mismatch")

	require.NoError(t, ConfigureJWT("another-secret-abcdefghijkl", "issuer-a"))
	_, err = ValidateToken(tok)
	require.Error(t, err, "signature mismatch")

	_, err = ValidateToken("garbage")
	require.Error(t, err)
}

func TestConfigureJWT_ShortSecret(t *testing.T) {
	require.Error(t, ConfigureJWT("short", ""))
}

func TestParsePositiveID(t *testing.T) {
	id, err := ParsePositiveID("17")
	require.NoError(t, err)
	require.Equal(t, int64(17), id)

	_, err = ParsePositiveID("0")
	require.Error(t, err)
	_, err = ParsePositiveID("x")
	require.Error(t, err)
}

func TestOptionalText(t *testing.T) {
	require.Nil(t, OptionalText(""))
	require.Nil(t, OptionalText(" \t"))
	got := OptionalText("  broken box ")
	require.NotNil(t, got)
	require.Equal(t, "broken box", *got)
}
