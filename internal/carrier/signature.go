package carrier

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// verifySignature checks the carrier's request signature against secret, per
// §6: "Optional cryptographic signature header over the full URL and body;
// when a secret is configured, mismatches are rejected." The algorithm
// matches Twilio's X-Twilio-Signature scheme: HMAC-SHA1 over the request URL
// with each form parameter's key and value appended, sorted by key, then
// base64-encoded.
//
// An empty secret disables verification entirely (development only) and
// always reports a match.
func verifySignature(secret, fullURL string, form url.Values, signature string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
