package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/STPDevteam/awesome-server/pkg/auth"
	"github.com/STPDevteam/awesome-server/pkg/config"
)

// SaveAuthRequest is the body for POST /api/auth/:service.
type SaveAuthRequest struct {
	AuthData map[string]string `json:"auth_data" binding:"required"`
}

// serviceInfo is one catalog entry for GET /api/services. Credential values
// are never echoed; only the declared slot names are.
type serviceInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	AuthRequired  bool     `json:"auth_required"`
	RequiredKeys  []string `json:"required_keys,omitempty"`
	DeclaredTools []string `json:"declared_tools,omitempty"`
	Connected     bool     `json:"connected"`
}

// listServices handles GET /api/services: the static catalog plus the
// caller's live connection state.
func (s *Server) listServices(c *gin.Context) {
	user := userID(c)
	connected := make(map[string]bool)
	if user != "" {
		for _, name := range s.deps.Manager.ListConnected(user) {
			connected[name] = true
		}
	}

	var out []serviceInfo
	for _, name := range s.deps.Registry.Names() {
		cfg, err := s.deps.Registry.Get(name)
		if err != nil {
			continue
		}
		info := serviceInfo{
			Name:          cfg.Name,
			Description:   cfg.Description,
			AuthRequired:  cfg.AuthRequired,
			DeclaredTools: cfg.DeclaredTools,
			Connected:     connected[cfg.Name],
		}
		for _, param := range cfg.AuthParams {
			if param.Required {
				info.RequiredKeys = append(info.RequiredKeys, param.Key)
			}
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"services": out})
}

// saveAuth handles POST /api/auth/:service. Saved credentials are
// unverified until a verify call succeeds.
func (s *Server) saveAuth(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity"})
		return
	}
	service := c.Param("service")
	if !s.deps.Registry.Has(service) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service: " + service})
		return
	}

	var req SaveAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.deps.Creds.Save(c.Request.Context(), user, service, req.AuthData); err != nil {
		s.logger.Error("Failed to save credentials", "service", service, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true, "verified": false})
}

// verifyAuth handles POST /api/auth/:service/verify: test-connects with the
// candidate credentials and marks the record verified on success. The probe
// connection is torn down either way.
func (s *Server) verifyAuth(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity"})
		return
	}
	service := c.Param("service")
	ctx := c.Request.Context()

	cfg, err := s.deps.Registry.Get(service)
	if err != nil {
		if errors.Is(err, config.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	derived, err := s.deps.Injector.BuildUnverified(ctx, *cfg, user)
	if err != nil {
		var missingErr *auth.MissingAuthError
		if errors.As(err, &missingErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   missingErr.Error(),
				"missing": missingErr.Missing,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := s.deps.Manager.Connect(ctx, derived, user); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "connection failed: " + err.Error()})
		return
	}
	defer func() { _ = s.deps.Manager.Disconnect(service, user) }()

	tools, err := s.deps.Manager.ListTools(ctx, service, user)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "tool listing failed: " + err.Error()})
		return
	}

	if err := s.deps.Creds.MarkVerified(ctx, user, service); err != nil {
		s.logger.Error("Failed to mark credentials verified", "service", service, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record verification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true, "tool_count": len(tools)})
}

// deleteAuth handles DELETE /api/auth/:service.
func (s *Server) deleteAuth(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity"})
		return
	}
	service := c.Param("service")

	if err := s.deps.Creds.Delete(c.Request.Context(), user, service); err != nil {
		s.logger.Error("Failed to delete credentials", "service", service, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
