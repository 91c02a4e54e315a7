package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sign builds the private-API headers per the venue's bit-exact signature
// contract: the signature input is the null-byte-joined sequence
// api_key, server_time_ms, nonce, "", organization_id, "", METHOD,
// api_path, query_string, HMAC-SHA256'd with the secret key.
func sign(creds Credentials, method, apiPath, query string, serverTime time.Time) (map[string]string, error) {
	nonce := uuid.New().String()
	requestID := uuid.New().String()
	serverTimeMillis := fmt.Sprintf("%d", serverTime.UnixMilli())

	input := fmt.Sprintf("%s\x00%s\x00%s\x00\x00%s\x00\x00%s\x00%s\x00%s",
		creds.APIKey,
		serverTimeMillis,
		nonce,
		creds.OrganizationID,
		method,
		apiPath,
		query,
	)

	mac := hmac.New(sha256.New, []byte(creds.APISecretKey))
	mac.Write([]byte(input))
	signature := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"X-Time":            serverTimeMillis,
		"X-Nonce":           nonce,
		"X-Organization-Id": creds.OrganizationID,
		"X-Request-Id":      requestID,
		"X-Auth":            creds.APIKey + ":" + signature,
	}, nil
}
