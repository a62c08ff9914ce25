// Package importer implements the upload side of the ingestion pipeline:
// credential minting, streaming CSV parsing, and row dispatch onto the queue.
package importer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issue errors, reported to clients verbatim.
var (
	ErrNameRequired    = errors.New("Name is required")
	ErrInvalidFileType = errors.New("Invalid file type")
	ErrInvalidFileName = errors.New("Invalid file name")
)

const scopeWrite = "write"

// UploadCredential is a time-boxed, write-only grant for one object key.
type UploadCredential struct {
	UploadURL string `json:"uploadUrl"`
	FileName  string `json:"fileName"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// Issuer mints signed upload credentials for the incoming namespace.
type Issuer struct {
	secret    []byte
	ttl       time.Duration
	prefix    string
	extension string
	baseURL   string
}

// NewIssuer creates an Issuer. prefix is the incoming namespace
// ("uploaded/"), extension the accepted file extension (".csv").
func NewIssuer(secret string, ttl time.Duration, prefix, extension, baseURL string) *Issuer {
	return &Issuer{
		secret:    []byte(secret),
		ttl:       ttl,
		prefix:    prefix,
		extension: strings.ToLower(extension),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

type uploadClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// IssueUploadCredential validates the requested object name and returns a
// write-scoped credential for prefix+name, valid for the configured window.
// The credential never permits reads or deletes.
func (i *Issuer) IssueUploadCredential(name string) (UploadCredential, error) {
	if name == "" {
		return UploadCredential{}, ErrNameRequired
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return UploadCredential{}, ErrInvalidFileName
	}
	if !strings.HasSuffix(strings.ToLower(name), i.extension) {
		return UploadCredential{}, ErrInvalidFileType
	}
	key := i.prefix + name
	now := time.Now()
	claims := uploadClaims{
		Scope: scopeWrite,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return UploadCredential{}, fmt.Errorf("sign upload token: %w", err)
	}
	return UploadCredential{
		UploadURL: fmt.Sprintf("%s/upload/%s?token=%s", i.baseURL, key, url.QueryEscape(token)),
		FileName:  name,
		Key:       key,
		ExpiresIn: int(i.ttl.Seconds()),
	}, nil
}

// VerifyUploadToken checks that token grants write access to exactly key and
// has not expired.
func (i *Issuer) VerifyUploadToken(token, key string) error {
	var claims uploadClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return fmt.Errorf("verify upload token: %w", err)
	}
	if claims.Scope != scopeWrite {
		return fmt.Errorf("verify upload token: scope %q is not %q", claims.Scope, scopeWrite)
	}
	if claims.Subject != key {
		return fmt.Errorf("verify upload token: token is not valid for key %q", key)
	}
	return nil
}
