package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juho05/log"

	"github.com/juho05/apcalt/metrics"
)

// AuthService drives the credential chain: a login cookie token, then
// temporary AWS credentials, then the account access token. Each stage is
// refreshed lazily once it has expired.
//
// Whenever one of the methods returns an error matching ErrUnauthenticated or
// ErrInvalidCredentials the credentials have been reset and must be discarded
// by the caller.
type AuthService interface {
	Login(ctx context.Context, c *Credentials, username, password string) error
	Logout(c *Credentials)
	EnsureAWS(ctx context.Context, c *Credentials) error
	EnsureAccount(ctx context.Context, c *Credentials) error
	AccessToken(ctx context.Context, c *Credentials) (string, error)
}

type authService struct {
	provider IdentityProvider
	now      func() time.Time
}

func NewAuthService(provider IdentityProvider) AuthService {
	return &authService{
		provider: provider,
		now:      time.Now,
	}
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	default:
		return "error"
	}
}

func (a *authService) Login(ctx context.Context, c *Credentials, username, password string) error {
	c.reset()
	token, err := a.provider.Login(ctx, username, password)
	metrics.CredentialRefreshes.WithLabelValues("login", refreshResult(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrProviderRejected) {
			log.Tracef("Login rejected for %s: %s", username, err)
			return ErrInvalidCredentials
		}
		return fmt.Errorf("login: %w", err)
	}
	c.CookieToken = token
	return nil
}

func (a *authService) Logout(c *Credentials) {
	c.reset()
}

func (a *authService) EnsureAWS(ctx context.Context, c *Credentials) error {
	return a.logoutOnFatal(c, a.ensureAWS(ctx, c))
}

func (a *authService) EnsureAccount(ctx context.Context, c *Credentials) error {
	return a.logoutOnFatal(c, a.ensureAccount(ctx, c))
}

func (a *authService) AccessToken(ctx context.Context, c *Credentials) (string, error) {
	err := a.logoutOnFatal(c, a.ensureAccount(ctx, c))
	if err != nil {
		return "", err
	}
	return c.Account.AccessToken, nil
}

func (a *authService) logoutOnFatal(c *Credentials, err error) error {
	if err != nil && IsFatalAuth(err) {
		a.Logout(c)
	}
	return err
}

func (a *authService) ensureAWS(ctx context.Context, c *Credentials) error {
	if c.awsValid(a.now()) {
		return nil
	}
	if c.CookieToken == "" {
		return ErrUnauthenticated
	}
	userName, expires, err := a.provider.RefreshTemporaryCredentials(ctx, c.CookieToken)
	metrics.CredentialRefreshes.WithLabelValues("aws", refreshResult(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrProviderRejected) {
			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return fmt.Errorf("ensure aws: %w", err)
	}
	c.UserName = userName
	c.AWSExpire = expires
	c.modified = true
	return nil
}

func (a *authService) ensureAccount(ctx context.Context, c *Credentials) error {
	err := a.ensureAWS(ctx, c)
	if err != nil {
		return err
	}
	if c.accountValid(a.now()) {
		return nil
	}
	account, err := a.provider.RefreshAccountToken(ctx, c.CookieToken, c.UserName)
	metrics.CredentialRefreshes.WithLabelValues("account", refreshResult(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrProviderRejected) {
			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return fmt.Errorf("ensure account: %w", err)
	}
	c.Account = account
	c.modified = true
	return nil
}
