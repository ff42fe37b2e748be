// Package apitest runs an in-process stand-in for the reservation API's
// authentication endpoints, for tests of the session core and the CLI.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/jrsteele09/go-campus-session/api"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// RouteResource is a protected endpoint that answers 200 with the caller's
// user id, or 401.
const RouteResource = "/resources/{name}"

type account struct {
	password string
	profile  sessionmodel.Profile
}

// Server is a fake API. Credentials are issued as tok1, tok2, ... in login
// order.
type Server struct {
	*httptest.Server

	cookieName       string
	credentialInBody bool
	cookieless       bool

	lock         sync.Mutex
	accounts     map[string]account
	sessions     map[string]string
	issued       int
	logoutStatus int
	calls        map[string]int
	authorized   map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithCookieName sets the session cookie name. sessionmodel.DefaultCookieName
// is used otherwise.
func WithCookieName(name string) Option {
	return func(s *Server) {
		s.cookieName = name
	}
}

// WithCredentialInBody also returns the credential in the login body.
func WithCredentialInBody() Option {
	return func(s *Server) {
		s.credentialInBody = true
	}
}

// WithoutCookie stops login from setting the session cookie.
func WithoutCookie() Option {
	return func(s *Server) {
		s.cookieless = true
	}
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB, options ...Option) *Server {
	t.Helper()
	s := &Server{
		cookieName: sessionmodel.DefaultCookieName,
		accounts:   make(map[string]account),
		sessions:   make(map[string]string),
		calls:      make(map[string]int),
		authorized: make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc(api.RouteAuthLogin, s.count(api.RouteAuthLogin, s.login)).Methods(http.MethodPost)
	r.HandleFunc(api.RouteAuthMyInfo, s.count(api.RouteAuthMyInfo, s.myInfo)).Methods(http.MethodGet)
	r.HandleFunc(api.RouteAuthLogout, s.count(api.RouteAuthLogout, s.logout)).Methods(http.MethodGet)
	r.HandleFunc(RouteResource, s.count(RouteResource, s.resource)).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account.
func (s *Server) AddUser(email, password string, profile sessionmodel.Profile) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if profile.Email == "" {
		profile.Email = email
	}
	s.accounts[email] = account{password: password, profile: profile}
}

// Revoke ends the server side of a session so it answers 401 from now on.
func (s *Server) Revoke(credential string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.sessions, credential)
}

// RevokeAll ends every session.
func (s *Server) RevokeAll() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions = make(map[string]string)
}

// FailLogout makes the logout endpoint answer status; 0 restores success.
func (s *Server) FailLogout(status int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.logoutStatus = status
}

// Active reports whether credential is a live session.
func (s *Server) Active(credential string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.sessions[credential]
	return ok
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls[route]
}

// Authorized returns how many requests to route carried a live credential.
func (s *Server) Authorized(route string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.authorized[route]
}

// ResourceURL returns the absolute URL of the protected resource name.
func (s *Server) ResourceURL(name string) string {
	return s.URL + strings.Replace(RouteResource, "{name}", name, 1)
}

func (s *Server) count(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.calls[route]++
		if _, ok := s.session(r); ok {
			s.authorized[route]++
		}
		s.lock.Unlock()
		next(w, r)
	}
}

// session must be called with the lock held.
func (s *Server) session(r *http.Request) (string, bool) {
	credential := ""
	if c, err := r.Cookie(s.cookieName); err == nil {
		credential = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		credential = strings.TrimPrefix(h, "Bearer ")
	}
	email, ok := s.sessions[credential]
	return email, ok && credential != ""
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req sessionmodel.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad json"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": []string{"email should not be empty", "password should not be empty"},
		})
		return
	}

	s.lock.Lock()
	acc, ok := s.accounts[req.Email]
	if !ok || acc.password != req.Password {
		s.lock.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid email or password"})
		return
	}
	s.issued++
	credential := fmt.Sprintf("tok%d", s.issued)
	s.sessions[credential] = req.Email
	s.lock.Unlock()

	if !s.cookieless {
		http.SetCookie(w, &http.Cookie{Name: s.cookieName, Value: credential, Path: "/", HttpOnly: true})
	}
	body := map[string]any{"user": acc.profile}
	if s.credentialInBody {
		body["token"] = credential
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) myInfo(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	email, ok := s.session(r)
	profile := s.accounts[email].profile
	s.lock.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	status := s.logoutStatus
	_, live := s.session(r)
	if status == 0 && live {
		if c, err := r.Cookie(s.cookieName); err == nil {
			delete(s.sessions, c.Value)
		}
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			delete(s.sessions, strings.TrimPrefix(h, "Bearer "))
		}
	}
	s.lock.Unlock()

	switch {
	case status != 0:
		writeJSON(w, status, map[string]any{"message": "logout failed"})
	case !live:
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
	default:
		http.SetCookie(w, &http.Cookie{Name: s.cookieName, Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) resource(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	email, ok := s.session(r)
	id := s.accounts[email].profile.ID
	s.lock.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": mux.Vars(r)["name"], "owner": id})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
