package locator

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

// signer produces AWS Signature Version 4 headers for the locality HTTP
// service call. Implemented directly against crypto/hmac and crypto/sha256
// rather than pulling in an AWS SDK for this single signed GET.
type signer struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Service         string
}

// Sign adds the Authorization, X-Amz-Date, and (if present) X-Amz-Security-Token
// headers to req, signing it for now.
func (s signer) Sign(req *http.Request, now time.Time) {
	amzDate := now.UTC().Format("20060102T150405Z")
	dateStamp := now.UTC().Format("20060102")

	req.Header.Set("X-Amz-Date", amzDate)
	if s.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", s.SessionToken)
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL.Path),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		hashHex(bodyOf(req)),
	}, "\n")

	credentialScope := strings.Join([]string{dateStamp, s.Region, s.Service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := s.signingKey(dateStamp)
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	authHeader := "AWS4-HMAC-SHA256 " +
		"Credential=" + s.AccessKeyID + "/" + credentialScope + ", " +
		"SignedHeaders=" + signedHeaders + ", " +
		"Signature=" + signature
	req.Header.Set("Authorization", authHeader)
}

func (s signer) signingKey(dateStamp string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.SecretAccessKey), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(s.Region))
	kService := hmacSHA256(kRegion, []byte(s.Service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func canonicalizeHeaders(req *http.Request) (canonical, signed string) {
	names := []string{"host", "x-amz-date"}
	if req.Header.Get("X-Amz-Security-Token") != "" {
		names = append(names, "x-amz-security-token")
	}
	sort.Strings(names)

	var canonicalLines []string
	for _, name := range names {
		canonicalLines = append(canonicalLines, name+":"+strings.TrimSpace(headerValue(req, name))+"\n")
	}
	return strings.Join(canonicalLines, ""), strings.Join(names, ";")
}

func headerValue(req *http.Request, lowerName string) string {
	switch lowerName {
	case "host":
		return req.Header.Get("Host")
	default:
		for k, v := range req.Header {
			if strings.EqualFold(k, lowerName) && len(v) > 0 {
				return v[0]
			}
		}
		return ""
	}
}

func bodyOf(req *http.Request) []byte {
	// The locator only ever issues signed GET requests with no body.
	return []byte{}
}
