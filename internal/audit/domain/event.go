package domain

import "time"

// Audit actions recorded by the auth core.
const (
	ActionRegister           = "register"
	ActionLoginSuccess       = "login_success"
	ActionLoginFailure       = "login_failure"
	ActionMagicLinkRequested = "magic_link_requested"
	ActionMagicLinkVerified  = "magic_link_verified"
	ActionMagicLinkFailure   = "magic_link_failure"
	ActionTokenIssued        = "token_issued"
	ActionTokenRefreshed     = "token_refreshed"
	ActionRefreshReplay      = "refresh_token_replay"
	ActionIssuanceDenied     = "issuance_denied"
	ActionLogout             = "logout"
	ActionLogoutAll          = "logout_all"
	ActionProfileUpdated     = "profile_updated"
)

// Resources named by audit events.
const (
	ResourceAuthentication = "authentication"
	ResourceSession        = "session"
	ResourceUser           = "user"
)

// Event represents an audit event. SubjectID is empty when the actor is unknown
// (e.g. a failed login).
type Event struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	SubjectID string            `json:"subject_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
