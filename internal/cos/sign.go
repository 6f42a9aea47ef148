// Package cos holds the object store conventions shared by the server and
// the uploader: key layout, request signing and derived-view URLs.
package cos

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const signAlgorithm = "sha1"

// KeyTime formats a signing window as "<start>;<end>" in unix seconds.
func KeyTime(start, end time.Time) string {
	return fmt.Sprintf("%d;%d", start.Unix(), end.Unix())
}

// SignKey derives the window-scoped signing key from the account secret.
// Whoever holds it can sign requests until the window closes without ever
// seeing the secret itself.
func SignKey(secretKey, keyTime string) string {
	return hmacSHA1Hex(secretKey, keyTime)
}

// Request describes the parts of an HTTP request covered by a signature.
type Request struct {
	Method  string
	Path    string
	Params  map[string]string
	Headers map[string]string
}

// StringToSign builds the canonical string for r within keyTime.
// Format: sha1\nKEYTIME\nSHA1(HTTPSTRING)\n
func StringToSign(r Request, keyTime string) string {
	params, _ := canonical(r.Params)
	headers, _ := canonical(r.Headers)
	httpString := fmt.Sprintf("%s\n%s\n%s\n%s\n", strings.ToLower(r.Method), r.Path, params, headers)

	sum := sha1.Sum([]byte(httpString))
	return fmt.Sprintf("%s\n%s\n%s\n", signAlgorithm, keyTime, hex.EncodeToString(sum[:]))
}

// Signature signs r with a key produced by SignKey.
func Signature(signKey string, r Request, keyTime string) string {
	return hmacSHA1Hex(signKey, StringToSign(r, keyTime))
}

// Authorization renders the Authorization header value for r.
func Authorization(secretID, signKey, keyTime string, r Request) string {
	_, headerList := canonical(r.Headers)
	_, paramList := canonical(r.Params)

	return strings.Join([]string{
		"q-sign-algorithm=" + signAlgorithm,
		"q-ak=" + secretID,
		"q-sign-time=" + keyTime,
		"q-key-time=" + keyTime,
		"q-header-list=" + headerList,
		"q-url-param-list=" + paramList,
		"q-signature=" + Signature(signKey, r, keyTime),
	}, "&")
}

// ParseAuthorization splits an Authorization header into its fields.
func ParseAuthorization(header string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(header, "&") {
		k, v, ok := strings.Cut(part, "=")
		if ok {
			fields[k] = v
		}
	}
	return fields
}

// Verify checks an Authorization header against the account secret the way
// the object store does: re-derive the sign key and compare signatures in
// constant time.
func Verify(secretKey, header string, r Request, now time.Time) bool {
	fields := ParseAuthorization(header)
	keyTime := fields["q-key-time"]

	var start, end int64
	if _, err := fmt.Sscanf(keyTime, "%d;%d", &start, &end); err != nil {
		return false
	}
	if now.Unix() < start || now.Unix() > end {
		return false
	}

	expected := Signature(SignKey(secretKey, keyTime), r, keyTime)
	return hmac.Equal([]byte(expected), []byte(fields["q-signature"]))
}

func canonical(values map[string]string) (string, string) {
	keys := make([]string, 0, len(values))
	lowered := make(map[string]string, len(values))
	for k, v := range values {
		lk := strings.ToLower(k)
		keys = append(keys, lk)
		lowered[lk] = v
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, escape(k)+"="+escape(lowered[k]))
	}
	return strings.Join(pairs, "&"), strings.Join(keys, ";")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func hmacSHA1Hex(key, message string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
