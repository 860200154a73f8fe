package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/juho05/log"
)

// IdentityProvider performs the credential exchanges of the upstream
// platform. Explicit rejections wrap ErrProviderRejected; every other error is
// transient.
type IdentityProvider interface {
	Login(ctx context.Context, username, password string) (cookieToken string, err error)
	RefreshTemporaryCredentials(ctx context.Context, cookieToken string) (userName string, expires time.Time, err error)
	RefreshAccountToken(ctx context.Context, cookieToken, userName string) (*AccountToken, error)
}

type ProviderURLs struct {
	Login     string
	Authn     string
	Cookie    string
	AWSCreds  string
	Account   string
	UserAgent string
}

type collegeBoardProvider struct {
	client *http.Client
	urls   ProviderURLs
}

// NewCollegeBoardProvider returns an IdentityProvider talking to the College
// Board login and credential endpoints. client is used for the refresh calls;
// every login gets its own cookie jar on top of client's transport.
func NewCollegeBoardProvider(client *http.Client, urls ProviderURLs) IdentityProvider {
	if urls.UserAgent == "" {
		urls.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
	}
	return &collegeBoardProvider{
		client: client,
		urls:   urls,
	}
}

func (p *collegeBoardProvider) newRequest(ctx context.Context, method, uri string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.urls.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *collegeBoardProvider) Login(ctx context.Context, username, password string) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	client := &http.Client{
		Transport: p.client.Transport,
		Timeout:   p.client.Timeout,
		Jar:       jar,
	}

	req, err := p.newRequest(ctx, http.MethodGet, p.urls.Login, nil)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: load login page: %w", err)
	}
	page, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return "", fmt.Errorf("login: read login page: %w", err)
	}
	if res.StatusCode == http.StatusForbidden {
		log.Errorf("Login page returned 403, is this IP address banned?: %s", page)
		return "", fmt.Errorf("login: %w: login page returned 403", ErrUpstream)
	}
	stateToken, ok := extractStateToken(string(page))
	if !ok {
		log.Errorf("State token not found in login page")
		return "", fmt.Errorf("login: %w: state token not found", ErrProviderRejected)
	}

	type authnOptions struct {
		WarnBeforePasswordExpired bool `json:"warnBeforePasswordExpired"`
		MultiOptionalFactorEnroll bool `json:"multiOptionalFactorEnroll"`
	}
	type authnRequest struct {
		Username   string       `json:"username"`
		Password   string       `json:"password"`
		StateToken string       `json:"stateToken"`
		Options    authnOptions `json:"options"`
	}
	req, err = p.newRequest(ctx, http.MethodPost, p.urls.Authn, authnRequest{
		Username:   username,
		Password:   password,
		StateToken: stateToken,
	})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	res, err = client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: authn: %w", err)
	}
	var authn struct {
		Links struct {
			Next *struct {
				Href string `json:"href"`
			} `json:"next"`
		} `json:"_links"`
	}
	err = json.NewDecoder(res.Body).Decode(&authn)
	res.Body.Close()
	if err != nil && res.StatusCode < 400 {
		return "", fmt.Errorf("login: decode authn response: %w", err)
	}
	if authn.Links.Next == nil || authn.Links.Next.Href == "" {
		log.Tracef("No next link in authn response (status %d)", res.StatusCode)
		return "", fmt.Errorf("login: %w: authn did not succeed", ErrProviderRejected)
	}

	req, err = p.newRequest(ctx, http.MethodGet, authn.Links.Next.Href, nil)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	res, err = client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: follow next link: %w", err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()

	cookieURL, err := url.Parse(p.urls.Cookie)
	if err != nil {
		return "", fmt.Errorf("login: parse cookie url: %w", err)
	}
	for _, c := range jar.Cookies(cookieURL) {
		if c.Name == "cb_login" && c.Value != "" {
			return c.Value, nil
		}
	}
	log.Errorf("No cb_login cookie found after login")
	return "", fmt.Errorf("login: %w: cb_login cookie missing", ErrProviderRejected)
}

// extractStateToken finds the "stateToken" value embedded in the login page
// and resolves its \xNN escapes.
func extractStateToken(page string) (string, bool) {
	const marker = `"stateToken":"`
	start := strings.Index(page, marker)
	if start < 0 {
		return "", false
	}
	start += len(marker)
	end := strings.IndexByte(page[start:], '"')
	if end < 0 {
		return "", false
	}
	token := page[start : start+end]

	var b strings.Builder
	for i := 0; i < len(token); i++ {
		if token[i] == '\\' && i+3 < len(token) && token[i+1] == 'x' {
			if c, err := strconv.ParseUint(token[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += 3
				continue
			}
		}
		b.WriteByte(token[i])
	}
	return b.String(), b.Len() > 0
}

func (p *collegeBoardProvider) RefreshTemporaryCredentials(ctx context.Context, cookieToken string) (string, time.Time, error) {
	uri, err := url.Parse(p.urls.AWSCreds)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh aws: %w", err)
	}
	query := uri.Query()
	query.Set("cbEnv", "pine")
	query.Set("appId", "366")
	query.Set("cbAWSDomains", "apfym,catapult")
	query.Set("cacheNonce", "0")
	uri.RawQuery = query.Encode()

	req, err := p.newRequest(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh aws: %w", err)
	}
	req.Header.Set("Authorization", "CBLogin "+cookieToken)
	res, err := p.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh aws: %w", err)
	}
	defer res.Body.Close()

	var creds struct {
		ErrorType     string `json:"errorType"`
		CBUserProfile struct {
			SessionInfo struct {
				IdentityKey struct {
					UserName string `json:"userName"`
				} `json:"identityKey"`
			} `json:"sessionInfo"`
		} `json:"cbUserProfile"`
		Catapult struct {
			Credentials struct {
				Expiration string `json:"Expiration"`
			} `json:"Credentials"`
		} `json:"catapult"`
	}
	decodeErr := json.NewDecoder(res.Body).Decode(&creds)
	if res.StatusCode == http.StatusBadRequest && creds.ErrorType == "SucredProviderError" {
		return "", time.Time{}, fmt.Errorf("refresh aws: %w: %s", ErrProviderRejected, creds.ErrorType)
	}
	if res.StatusCode != http.StatusOK {
		log.Errorf("Error received from AWS refresh: status %d, error type %q", res.StatusCode, creds.ErrorType)
		return "", time.Time{}, fmt.Errorf("refresh aws: %w: status %d", ErrUpstream, res.StatusCode)
	}
	if decodeErr != nil {
		return "", time.Time{}, fmt.Errorf("refresh aws: decode response: %w", decodeErr)
	}

	userName := creds.CBUserProfile.SessionInfo.IdentityKey.UserName
	if userName == "" {
		return "", time.Time{}, fmt.Errorf("refresh aws: %w: missing user name", ErrUpstream)
	}
	expires, err := parseTimestamp(creds.Catapult.Credentials.Expiration)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh aws: %w: invalid expiration: %w", ErrUpstream, err)
	}
	return userName, expires, nil
}

func (p *collegeBoardProvider) RefreshAccountToken(ctx context.Context, cookieToken, userName string) (*AccountToken, error) {
	type accountRequest struct {
		Namespace string `json:"namespace"`
		SessionID string `json:"sessionId"`
		Username  string `json:"username"`
	}
	req, err := p.newRequest(ctx, http.MethodPost, p.urls.Account, accountRequest{
		Namespace: "st",
		SessionID: cookieToken,
		Username:  userName,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh account: %w", err)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh account: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("refresh account: %w", ErrProviderRejected)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh account: %w: status %d", ErrUpstream, res.StatusCode)
	}

	var account struct {
		ID          json.Number `json:"id"`
		AccessToken string      `json:"access_token"`
		ImportID    json.Number `json:"import_id"`
		Expires     string      `json:"expires"`
	}
	err = json.NewDecoder(res.Body).Decode(&account)
	if err != nil {
		return nil, fmt.Errorf("refresh account: decode response: %w", err)
	}
	if account.AccessToken == "" {
		return nil, fmt.Errorf("refresh account: %w: missing access token", ErrUpstream)
	}

	expires, err := parseTimestamp(account.Expires)
	if err != nil {
		expires, err = tokenExpiry(account.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("refresh account: %w: unknown token expiry: %w", ErrUpstream, err)
		}
	}
	return &AccountToken{
		ID:          account.ID.String(),
		AccessToken: account.AccessToken,
		ImportID:    account.ImportID.String(),
		Expires:     expires,
	}, nil
}

// parseTimestamp parses the ISO 8601 timestamps of the upstream APIs. Values
// without a zone are UTC.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// tokenExpiry reads the exp claim of a JWT access token without verifying it.
// The token is only ever forwarded upstream, never trusted locally.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
