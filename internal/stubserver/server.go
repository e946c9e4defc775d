// Package stubserver implements a local stand-in for the Scratcha dashboard
// backend: the auth, profile, application, and API key endpoints the console
// speaks to. It backs cmd/stubd and the test harness.
package stubserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 15 * time.Minute

// Options configures the stub backend.
type Options struct {
	// JWTSecret signs access tokens (HS256). Defaults to a fixed dev secret.
	JWTSecret string
	// TokenTTL is the access token lifetime. Defaults to 15m.
	TokenTTL time.Duration
	// DuplicateListings repeats the first application record in list
	// responses, mimicking the duplicate rows the real backend has been
	// observed to return.
	DuplicateListings bool
}

// Server is the stub backend. All state is in memory.
type Server struct {
	e      *echo.Echo
	secret []byte
	ttl    time.Duration

	mu           sync.Mutex
	usersByEmail map[string]*user
	usersByID    map[string]*user
	apps         map[string]*app
	keys         map[string]*apiKey

	duplicateListings bool
	forceProfile403   bool

	nowF func() time.Time
}

type user struct {
	ID           string
	Email        string
	UserName     string
	PasswordHash string
	Roles        []string
	Permissions  []string
	Deleted      bool
}

type app struct {
	ID            string
	Name          string
	Description   string
	Status        string
	ExpiresPolicy int
	CreatedAt     time.Time
	Settings      settings
	Usage         usage
}

type settings struct {
	Model          string `json:"model"`
	NoiseLevel     string `json:"noiseLevel"`
	HeuristicLevel string `json:"heuristicLevel"`
}

type usage struct {
	Today int `json:"today"`
	Week  int `json:"week"`
	Month int `json:"month"`
}

type apiKey struct {
	ID       string
	AppID    string
	Name     string
	Key      string
	Status   string
	LastUsed time.Time
}

// New returns a configured stub server.
func New(opts Options) *Server {
	secret := opts.JWTSecret
	if secret == "" {
		secret = "scratcha-stub-dev-secret"
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	s := &Server{
		e:                 echo.New(),
		secret:            []byte(secret),
		ttl:               ttl,
		usersByEmail:      make(map[string]*user),
		usersByID:         make(map[string]*user),
		apps:              make(map[string]*app),
		keys:              make(map[string]*apiKey),
		duplicateListings: opts.DuplicateListings,
		nowF:              func() time.Time { return time.Now().UTC() },
	}
	s.e.HideBanner = true
	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.e.Group("/api/dashboard")
	g.POST("/auth/login", s.login)
	g.POST("/users/signup", s.signup)

	authed := g.Group("", s.requireBearer)
	authed.POST("/auth/logout", s.logout)
	authed.GET("/users/me", s.profile)
	authed.PATCH("/users/me", s.updateProfile)
	authed.DELETE("/users/me", s.deleteAccount)
	authed.GET("/applications/", s.listApplications)
	authed.POST("/applications/", s.createApplication)
	authed.DELETE("/applications/:id", s.deleteApplication)
	authed.POST("/api-keys", s.createAPIKey)
	authed.DELETE("/api-keys/:id", s.deleteAPIKey)
	authed.PUT("/api-keys/:id/activate", s.activateAPIKey)
	authed.PUT("/api-keys/:id/deactivate", s.deactivateAPIKey)
}

// Handler returns the HTTP handler, suitable for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves on addr until the process exits.
func (s *Server) Start(addr string) error { return s.e.Start(addr) }

// SeedUser registers a user directly, bypassing signup. Returns the user ID.
func (s *Server) SeedUser(email, password, userName string, roles, permissions []string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u := &user{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(email),
		UserName:     userName,
		PasswordHash: string(hash),
		Roles:        roles,
		Permissions:  permissions,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByEmail[u.Email] = u
	s.usersByID[u.ID] = u
	return u.ID
}

// SeedApp registers an application directly. Returns the app ID.
func (s *Server) SeedApp(name, description string) string {
	a := &app{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      "active",
		CreatedAt:   s.nowF(),
		Settings:    settings{Model: "gpt-4", NoiseLevel: "medium", HeuristicLevel: "medium"},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[a.ID] = a
	return a.ID
}

// SeedKey registers an API key directly. Returns the key ID.
func (s *Server) SeedKey(appID, name string) string {
	k := &apiKey{
		ID:     uuid.New().String(),
		AppID:  appID,
		Name:   name,
		Key:    "sk_live_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Status: "active",
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.ID] = k
	return k.ID
}

// ForceProfile403 makes GET /users/me answer 403 regardless of the token,
// simulating a backend instance that cannot resolve profiles.
func (s *Server) ForceProfile403(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceProfile403 = v
}

func (s *Server) issueToken(userID string) (string, error) {
	now := s.nowF()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		Issuer:    "scratcha-stub",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// requireBearer validates the Authorization header and loads the user into
// the request context.
func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(raw, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "missing bearer token"})
		}
		tok, err := jwt.ParseWithClaims(strings.TrimPrefix(raw, "Bearer "), &jwt.RegisteredClaims{},
			func(t *jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid token"})
		}
		claims := tok.Claims.(*jwt.RegisteredClaims)
		s.mu.Lock()
		u, ok := s.usersByID[claims.Subject]
		s.mu.Unlock()
		if !ok || u.Deleted {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unknown user"})
		}
		c.Set("user", u)
		return next(c)
	}
}

func currentUser(c echo.Context) *user {
	return c.Get("user").(*user)
}
