package model

// OnlineUser is a currently connected principal, as reported by the
// presence tracker. Never persisted.
type OnlineUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
