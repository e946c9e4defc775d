package stubserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

// login handles the OAuth2 password form: username carries the email.
func (s *Server) login(c echo.Context) error {
	email := strings.ToLower(strings.TrimSpace(c.FormValue("username")))
	password := c.FormValue("password")
	if email == "" || password == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
	}
	s.mu.Lock()
	u, ok := s.usersByEmail[email]
	s.mu.Unlock()
	if !ok || u.Deleted {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
	}
	tok, err := s.issueToken(u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "token issue failed"})
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: tok, TokenType: "Bearer"})
}

func (s *Server) signup(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		UserName string `json:"userName"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.UserName) == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "email, password, and userName are required"})
	}
	s.mu.Lock()
	_, exists := s.usersByEmail[req.Email]
	s.mu.Unlock()
	if exists {
		return c.JSON(http.StatusConflict, echo.Map{"detail": "email already registered"})
	}
	id := s.SeedUser(req.Email, req.Password, strings.TrimSpace(req.UserName), []string{"user"}, nil)
	tok, err := s.issueToken(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "token issue failed"})
	}
	return c.JSON(http.StatusCreated, tokenResponse{AccessToken: tok, TokenType: "Bearer"})
}

func (s *Server) logout(c echo.Context) error {
	// Tokens are stateless; nothing to revoke in the stub.
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) profile(c echo.Context) error {
	s.mu.Lock()
	force := s.forceProfile403
	s.mu.Unlock()
	if force {
		return c.JSON(http.StatusForbidden, echo.Map{"detail": "profile not resolvable"})
	}
	u := currentUser(c)
	return c.JSON(http.StatusOK, echo.Map{
		"id":          u.ID,
		"username":    u.UserName,
		"email":       u.Email,
		"roles":       u.Roles,
		"permissions": u.Permissions,
	})
}

func (s *Server) updateProfile(c echo.Context) error {
	var req struct {
		UserName string `json:"userName"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid request body"})
	}
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "userName is required"})
	}
	u := currentUser(c)
	s.mu.Lock()
	u.UserName = req.UserName
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) deleteAccount(c echo.Context) error {
	u := currentUser(c)
	s.mu.Lock()
	u.Deleted = true
	s.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

type apiKeyRecord struct {
	ID       string     `json:"id"`
	AppID    string     `json:"appId"`
	Name     string     `json:"name"`
	Key      string     `json:"key"`
	Status   string     `json:"status"`
	LastUsed *time.Time `json:"lastUsed,omitempty"`
}

type applicationRecord struct {
	ID          string        `json:"id"`
	AppName     string        `json:"appName"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	Settings    settings      `json:"settings"`
	Usage       usage         `json:"usage"`
	Key         *apiKeyRecord `json:"key,omitempty"`
}

func (s *Server) listApplications(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.apps) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "no applications"})
	}
	records := make([]applicationRecord, 0, len(s.apps))
	for _, a := range s.apps {
		rec := applicationRecord{
			ID:          a.ID,
			AppName:     a.Name,
			Description: a.Description,
			Status:      a.Status,
			CreatedAt:   a.CreatedAt,
			Settings:    a.Settings,
			Usage:       a.Usage,
		}
		for _, k := range s.keys {
			if k.AppID == a.ID {
				kr := apiKeyRecord{ID: k.ID, AppID: k.AppID, Name: k.Name, Key: k.Key, Status: k.Status}
				if !k.LastUsed.IsZero() {
					lu := k.LastUsed
					kr.LastUsed = &lu
				}
				rec.Key = &kr
				break
			}
		}
		records = append(records, rec)
	}
	if s.duplicateListings && len(records) > 0 {
		records = append(records, records[0])
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) createApplication(c echo.Context) error {
	var req struct {
		AppName       string `json:"appName"`
		Description   string `json:"description"`
		ExpiresPolicy int    `json:"expiresPolicy"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid request body"})
	}
	if strings.TrimSpace(req.AppName) == "" || strings.TrimSpace(req.Description) == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "appName and description are required"})
	}
	a := &app{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(req.AppName),
		Description:   strings.TrimSpace(req.Description),
		Status:        "active",
		ExpiresPolicy: req.ExpiresPolicy,
		CreatedAt:     s.nowF(),
		Settings:      settings{Model: "gpt-4", NoiseLevel: "medium", HeuristicLevel: "medium"},
	}
	s.mu.Lock()
	s.apps[a.ID] = a
	s.mu.Unlock()
	return c.JSON(http.StatusCreated, echo.Map{"id": a.ID})
}

func (s *Server) deleteApplication(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[id]; !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "application not found"})
	}
	for _, k := range s.keys {
		if k.AppID == id {
			return c.JSON(http.StatusUnprocessableEntity,
				echo.Map{"detail": "application has dependent API keys"})
		}
	}
	delete(s.apps, id)
	return c.NoContent(http.StatusOK)
}

func (s *Server) createAPIKey(c echo.Context) error {
	appID := c.QueryParam("appId")
	s.mu.Lock()
	_, ok := s.apps[appID]
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "application not found"})
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid request body"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "name is required"})
	}
	id := s.SeedKey(appID, strings.TrimSpace(req.Name))
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

func (s *Server) deleteAPIKey(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "api key not found"})
	}
	delete(s.keys, id)
	return c.NoContent(http.StatusOK)
}

func (s *Server) setKeyStatus(c echo.Context, status string) error {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "api key not found"})
	}
	k.Status = status
	return c.NoContent(http.StatusOK)
}

func (s *Server) activateAPIKey(c echo.Context) error   { return s.setKeyStatus(c, "active") }
func (s *Server) deactivateAPIKey(c echo.Context) error { return s.setKeyStatus(c, "inactive") }
