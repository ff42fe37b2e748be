package sessionmodel

// Durable store keys. They match the keys used by earlier releases of the
// mobile client so an upgraded install keeps its session.
const (
	KeyCredential    = "auth_token"
	KeyAuthenticated = "isAuthenticated"
	KeyProfile       = "user_info"

	AuthenticatedValue = "true"
)

// DefaultCookieName is the cookie the API issues and expects the credential in.
const DefaultCookieName = "Authentication"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
