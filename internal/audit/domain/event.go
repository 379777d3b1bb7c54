package domain

import "time"

// Event is one authentication audit record.
type Event struct {
	ID        string
	Subject   string // identity reference ("user:1"), or the attempted email for failures
	Action    string
	Resource  string // provider name or "local"
	IP        string
	Metadata  string // JSON object, may be empty
	CreatedAt time.Time
}

// Actions recorded by the gateway.
const (
	ActionRegister     = "register"
	ActionLoginSuccess = "login_success"
	ActionLoginFailure = "login_failure"
	ActionOAuthCreate  = "oauth_create"
	ActionOAuthLogin   = "oauth_login"
	ActionOAuthMerge   = "oauth_merge"
)
