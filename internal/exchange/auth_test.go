package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_HeadersPresentAndSignatureVerifiable(t *testing.T) {
	creds := Credentials{
		OrganizationID: "org-1",
		APIKey:         "key-1",
		APISecretKey:   "secret-1",
	}
	serverTime := time.UnixMilli(1_700_000_000_000).UTC()

	headers, err := sign(creds, "GET", "/main/api/v2/accounting/account2", "a=1&b=2", serverTime)
	require.NoError(t, err)

	assert.Equal(t, "1700000000000", headers["X-Time"])
	assert.Equal(t, "org-1", headers["X-Organization-Id"])
	assert.NotEmpty(t, headers["X-Nonce"])
	assert.NotEmpty(t, headers["X-Request-Id"])
	assert.NotEqual(t, headers["X-Nonce"], headers["X-Request-Id"])

	auth := headers["X-Auth"]
	require.Contains(t, auth, ":")
	prefix := "key-1:"
	require.True(t, len(auth) > len(prefix) && auth[:len(prefix)] == prefix)

	nonce := headers["X-Nonce"]
	input := "key-1\x00" + "1700000000000" + "\x00" + nonce + "\x00\x00" + "org-1" + "\x00\x00" + "GET" + "\x00" + "/main/api/v2/accounting/account2" + "\x00" + "a=1&b=2"
	mac := hmac.New(sha256.New, []byte("secret-1"))
	mac.Write([]byte(input))
	wantSignature := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, "key-1:"+wantSignature, auth)
}

func TestSign_NonceDiffersAcrossCalls(t *testing.T) {
	creds := Credentials{OrganizationID: "org-1", APIKey: "key-1", APISecretKey: "secret-1"}
	serverTime := time.UnixMilli(1_700_000_000_000).UTC()

	h1, err := sign(creds, "GET", "/path", "", serverTime)
	require.NoError(t, err)
	h2, err := sign(creds, "GET", "/path", "", serverTime)
	require.NoError(t, err)

	assert.NotEqual(t, h1["X-Nonce"], h2["X-Nonce"])
	assert.NotEqual(t, h1["X-Auth"], h2["X-Auth"])
}
