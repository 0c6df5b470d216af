package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/jonbot/pkg/bedrock"
	appconfig "github.com/savaki/jonbot/pkg/config"
	"github.com/savaki/jonbot/pkg/dynamodb"
	"github.com/savaki/jonbot/pkg/handler"
	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/reve"
	jslack "github.com/savaki/jonbot/pkg/slack"
	"github.com/savaki/jonbot/pkg/tenant"
)

func TestOpenStoreFile(t *testing.T) {
	cfg := &appconfig.Config{ConfigStore: appconfig.StoreFile, ConfigDir: t.TempDir()}

	store, err := openStore(cfg, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &tenant.FileStore{}, store)
}

func TestOpenStoreDynamoDB(t *testing.T) {
	cfg := &appconfig.Config{ConfigStore: appconfig.StoreDynamoDB, TenantTable: "tenants"}

	store, err := openStore(cfg, aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &dynamodb.TenantRepository{}, store)
}

func TestOpenStoreUnknown(t *testing.T) {
	_, err := openStore(&appconfig.Config{ConfigStore: "redis"}, aws.Config{})
	assert.Error(t, err)
}

func TestNewGeneratorReve(t *testing.T) {
	cfg := &appconfig.Config{
		ImageProvider:     appconfig.ProviderReve,
		ReveAPIURL:        "https://preview.reve.art",
		GenerationTimeout: time.Minute,
	}

	gen, err := newGenerator(cfg, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &reve.Client{}, gen)
	assert.True(t, gen.NeedsAPIKey())
}

func TestNewGeneratorBedrock(t *testing.T) {
	cfg := &appconfig.Config{
		ImageProvider:       appconfig.ProviderBedrock,
		BedrockImageModelID: bedrock.DefaultModelID,
		GenerationTimeout:   time.Minute,
	}

	gen, err := newGenerator(cfg, aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &bedrock.Client{}, gen)
	assert.False(t, gen.NeedsAPIKey())
}

type stubInstaller struct{}

func (stubInstaller) ExchangeOAuthCode(ctx context.Context, clientID, clientSecret, code, redirectURL string) (jslack.Installation, error) {
	return jslack.Installation{TeamID: "T1", TeamName: "Acme", BotToken: "xoxb-new"}, nil
}

func TestMountOAuth(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *appconfig.Config
		status int
	}{
		{"not configured", &appconfig.Config{}, http.StatusNotFound},
		{"configured", &appconfig.Config{SlackClientID: "id", SlackClientSecret: "secret"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tenant.NewFileStore(t.TempDir())
			router := handler.NewRouter(handler.NewRegistry(nil, nil, nil), "token", handler.NewTasks(context.Background()), "")
			mountOAuth(router, tt.cfg, stubInstaller{}, store)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestTenantSetWritesStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_STORE", appconfig.StoreFile)
	t.Setenv("CONFIG_DIR", dir)

	rootCmd.SetArgs([]string{"tenant", "set", "T123", "--api-key", "reve-key", "--style", "anime"})
	require.NoError(t, rootCmd.Execute())

	cfg, err := tenant.Load(context.Background(), tenant.NewFileStore(dir), "T123")
	require.NoError(t, err)
	assert.Equal(t, "reve-key", cfg.GenerationAPIKey)
	assert.Equal(t, models.StyleAnime, cfg.Style)
	assert.Empty(t, cfg.PlatformAccessToken)
}

func TestTenantSetRejectsBadResolution(t *testing.T) {
	t.Setenv("CONFIG_STORE", appconfig.StoreFile)
	t.Setenv("CONFIG_DIR", t.TempDir())

	rootCmd.SetArgs([]string{"tenant", "set", "--resolution", "4096x4096"})
	assert.Error(t, rootCmd.Execute())
}
