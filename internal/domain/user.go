package domain

// Role names reported by the status endpoint.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the current session's user as resolved from the status query.
// Key is the usertag used to address and filter every real-time event.
type Identity struct {
	Key            string   `json:"usertag"`
	DisplayName    string   `json:"username"`
	Color          string   `json:"color,omitempty"`
	Role           string   `json:"role,omitempty"`
	Avatar         string   `json:"avatar,omitempty"`
	IsAdmin        bool     `json:"isAdmin,omitempty"`
	AnimatedColors []string `json:"animatedColors,omitempty"`
}

// LoggedIn reports whether the identity belongs to a session. An empty key
// means "no session".
func (i Identity) LoggedIn() bool {
	return i.Key != ""
}

// Admin reports whether the identity may emit system broadcasts.
func (i Identity) Admin() bool {
	return i.IsAdmin || i.Role == RoleAdmin
}
