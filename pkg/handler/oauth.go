package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/savaki/jonbot/pkg/models"
	jslack "github.com/savaki/jonbot/pkg/slack"
	"github.com/savaki/jonbot/pkg/tenant"
)

// Installer exchanges an OAuth install code for a bot token
type Installer interface {
	ExchangeOAuthCode(ctx context.Context, clientID, clientSecret, code, redirectURL string) (jslack.Installation, error)
}

// OAuthHandler completes app installation and stores the team's bot token
type OAuthHandler struct {
	installer    Installer
	store        tenant.Store
	clientID     string
	clientSecret string
	redirectURL  string
}

// NewOAuthHandler creates a new OAuth callback handler
func NewOAuthHandler(installer Installer, store tenant.Store, clientID, clientSecret, redirectURL string) *OAuthHandler {
	return &OAuthHandler{
		installer:    installer,
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
	}
}

// ServeHTTP handles GET /oauth/callback. It is only mounted when a client
// id and secret are configured.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		log.Printf("Installation declined: %s", reason)
		writeText(w, http.StatusBadRequest, "Installation was cancelled.")
		return
	}
	code := query.Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, "missing code")
		return
	}

	install, err := h.installer.ExchangeOAuthCode(r.Context(), h.clientID, h.clientSecret, code, h.redirectURL)
	if err != nil {
		log.Printf("ERROR: oauth exchange: %v", err)
		writeText(w, http.StatusBadGateway, "Installation failed. Please try again.")
		return
	}
	if install.TeamID == "" || install.BotToken == "" {
		log.Printf("ERROR: oauth exchange returned no team or token")
		writeText(w, http.StatusBadGateway, "Installation failed. Please try again.")
		return
	}

	_, err = tenant.Update(r.Context(), h.store, install.TeamID, func(cfg *models.TenantConfig) {
		cfg.PlatformAccessToken = install.BotToken
	})
	if err != nil {
		log.Printf("ERROR: saving token for team %s: %v", install.TeamID, err)
		writeText(w, http.StatusInternalServerError, "Installation failed. Please try again.")
		return
	}

	log.Printf("Installed for team %s (%s)", install.TeamID, install.TeamName)
	writeText(w, http.StatusOK, fmt.Sprintf("jonbot is installed in %s. You can close this window.", install.TeamName))
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
