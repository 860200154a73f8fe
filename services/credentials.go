package services

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(Credentials{})
}

type State int

const (
	StateUnauthenticated State = iota
	StateCookieAcquired
	StateAWSValid
	StateAccountValid
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCookieAcquired:
		return "cookie-acquired"
	case StateAWSValid:
		return "aws-valid"
	case StateAccountValid:
		return "account-valid"
	default:
		return "unknown"
	}
}

type AccountToken struct {
	ID          string
	AccessToken string
	ImportID    string
	Expires     time.Time
}

// Credentials is the per-session state of the credential chain. It is stored
// in the session under SessionKeyAuth. Every mutation goes through AuthService,
// which marks the value as modified.
type Credentials struct {
	CookieToken string
	UserName    string
	AWSExpire   time.Time
	Account     *AccountToken

	modified bool
}

func (c *Credentials) Modified() bool {
	return c.modified
}

func (c *Credentials) State(now time.Time) State {
	if c.CookieToken == "" {
		return StateUnauthenticated
	}
	if !c.awsValid(now) {
		return StateCookieAcquired
	}
	if !c.accountValid(now) {
		return StateAWSValid
	}
	return StateAccountValid
}

// OwnerID identifies the upstream user the credentials belong to. It is empty
// until the temporary credentials have been refreshed at least once.
func (c *Credentials) OwnerID() string {
	return c.UserName
}

func (c *Credentials) awsValid(now time.Time) bool {
	return c.UserName != "" && c.AWSExpire.After(now)
}

func (c *Credentials) accountValid(now time.Time) bool {
	return c.Account != nil && c.Account.Expires.After(now)
}

func (c *Credentials) reset() {
	*c = Credentials{modified: true}
}
