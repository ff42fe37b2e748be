package api

// Route path constants for the reservation API endpoints the session core calls.
const (
	RouteAuthLogin  = "/auth/login"
	RouteAuthMyInfo = "/auth/myInfo"
	RouteAuthLogout = "/auth/logout"
)
