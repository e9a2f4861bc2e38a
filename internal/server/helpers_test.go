package server

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/Meet1306/Whiteboard/internal/auth"
	"github.com/Meet1306/Whiteboard/internal/boards"
	"github.com/Meet1306/Whiteboard/internal/metrics"
	"github.com/Meet1306/Whiteboard/internal/realtime"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const testSigningSecret = "server-test-secret"

type testStack struct {
	handler http.Handler
	store   *boards.GormStore
	service *boards.Service
	issuer  *auth.TokenIssuer
	metrics *metrics.Collectors
}

func newTestStack(t *testing.T, origins []string) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&boards.Board{}, &boards.BoardShare{}, &boards.Comment{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store, err := boards.NewGormStore(db, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	service, err := boards.NewService(boards.ServiceConfig{Store: store, IDProvider: boards.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	ledger, err := realtime.NewCommentLedger(realtime.LedgerConfig{Store: store, IDProvider: boards.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	collectors := metrics.NewCollectors()
	registry := prometheus.NewRegistry()
	if err := collectors.Register(registry); err != nil {
		t.Fatalf("metrics: %v", err)
	}
	gateway, err := realtime.NewGateway(realtime.GatewayConfig{
		Cache:    realtime.NewSnapshotCache(),
		Registry: realtime.NewRegistry(),
		Reader:   store,
		Ledger:   ledger,
		Verifier: verifier,
		Metrics:  collectors,
	})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Gateway:        gateway,
		BoardService:   service,
		Verifier:       verifier,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AllowedOrigins: origins,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return &testStack{handler: handler, store: store, service: service, issuer: issuer, metrics: collectors}
}

func (s *testStack) tokenFor(t *testing.T, email string) string {
	t.Helper()
	token, _, err := s.issuer.IssueToken(auth.Identity{Email: email})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
