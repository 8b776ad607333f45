package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/agents"
	"github.com/vigil-sec/vigil/internal/api/middleware"
	"github.com/vigil-sec/vigil/internal/api/routes"
	"github.com/vigil-sec/vigil/internal/config"
	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/llm"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/store"
	"github.com/vigil-sec/vigil/internal/telemetry"
)

// cannedClient always answers with the same completion.
type cannedClient struct {
	response string
}

func (c cannedClient) Complete(context.Context, llm.Request) (string, error) {
	return c.response, nil
}

type noopVerifier struct{}

func (noopVerifier) Verify(context.Context, string) (bool, error) { return false, nil }

type noopAlerter struct{}

func (noopAlerter) Alert(string, string) {}

// buildPipeline wires the full stack the way cmd/api does, with canned
// model responses standing in for the provider.
func buildPipeline(t *testing.T, classifierOut, specialistOut string) (*Server, *store.LocalStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		Environment:    "test",
		HTTPPort:       "0",
		DelayDuration:  time.Millisecond,
		EnforcementTTL: time.Hour,
		JWTSecret:      "test-secret",
		AllowMockIP:    true,
	}

	st := store.NewLocalStore()
	sink := telemetry.NewSink(db)
	hist := history.NewMemoryStore()

	calibrator := agents.NewCalibrator(hist, st, db, noopAlerter{}, agents.EffectivenessPolicy{}, cfg.EnforcementTTL)
	tool := telemetry.NewQueryTool(sink)
	orchestrator := agents.NewOrchestrator(cannedClient{response: classifierOut}, calibrator,
		agents.NewAuthSpecialist(cannedClient{response: specialistOut}, tool),
		agents.NewSearchSpecialist(cannedClient{response: `[]`}, tool),
		agents.NewGeneralSpecialist(cannedClient{response: `[]`}, tool),
	)

	batcher := telemetry.NewBatcher(1000, 10, 100*time.Millisecond, orchestrator.HandleBatch)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go batcher.Run(ctx)

	interceptor := middleware.NewInterceptor(cfg, st, noopVerifier{}, batcher, sink)

	srv, err := New(db, cfg, routes.Deps{Store: st, Interceptor: interceptor, Sink: sink})
	require.NoError(t, err)
	return srv, st
}

func postLogin(srv *Server, ip, username string) *httptest.ResponseRecorder {
	body := fmt.Sprintf(`{"username":%q,"password":"wrong"}`, username)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mock-IP", ip)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	return w
}

func TestPipeline_BruteForceEndsBlocked(t *testing.T) {
	attacker := "203.0.113.66"
	classifierOut := fmt.Sprintf(`{"auth":["%s,/auth/login,POST,victim,{},10"],"search":[],"general":[]}`, attacker)
	specialistOut := fmt.Sprintf(`[{"entity_type":"ip","entity":"%s","severity":"high","mitigation":"temp_block","reason":"10 failed logins in one batch"}]`, attacker)

	srv, st := buildPipeline(t, classifierOut, specialistOut)

	// The attack: repeated failed logins sail through while analysis runs.
	for i := 0; i < 10; i++ {
		w := postLogin(srv, attacker, "victim")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	// The pipeline flushes, classifies, analyzes and enforces.
	require.Eventually(t, func() bool {
		_, ok, err := st.Get(context.Background(), models.EntityIP, attacker)
		return err == nil && ok
	}, 5*time.Second, 20*time.Millisecond, "enforcement entry should appear")

	w := postLogin(srv, attacker, "victim")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "attacker's next attempt is blocked")
	assert.Contains(t, w.Body.String(), "temporarily blocked")

	// A bystander on a different IP is unaffected.
	w = postLogin(srv, "198.51.100.9", "victim2")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPipeline_AdminAPIStaysReachableWhileBlocked(t *testing.T) {
	srv, st := buildPipeline(t, `{"auth":[],"search":[],"general":[]}`, `[]`)
	require.NoError(t, st.Set(context.Background(), models.EntityIP, "203.0.113.66", models.ActionBan, models.EnforcementDetails{}, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mitigations", nil)
	req.Header.Set("Mock-IP", "203.0.113.66")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "operator API must not be subject to enforcement")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w = httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPipeline_SearchTrafficFlows(t *testing.T) {
	srv, _ := buildPipeline(t, `{"auth":[],"search":[],"general":[]}`, `[]`)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=keyboard", nil)
	req.Header.Set("Mock-IP", "198.51.100.20")
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Mechanical Keyboard")
}
