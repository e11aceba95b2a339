package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"bountyboard/internal/config"
	"bountyboard/internal/db"
	"bountyboard/internal/engine"
	"bountyboard/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, authCfg AuthConfig) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     authCfg,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func (s *testServer) fund(t *testing.T, client *http.Client, account string, amount int64) {
	t.Helper()
	issuer := s.Engine.Config.Platform.IssuerAccount
	res, body := doJSON(t, client, http.MethodPost, s.URL+"/v0/tokens/mint", map[string]any{
		"account": account,
		"amount":  amount,
	}, asActor(issuer))
	if res.StatusCode >= 300 {
		t.Fatalf("mint status %d: %s", res.StatusCode, string(body))
	}
}

func TestBountyLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()
	client := srv.Client()

	srv.fund(t, client, "acme", 1000)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/developers", map[string]any{
		"developer": "dev-1",
		"skills":    []string{"go"},
	}, asActor("dev-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties", map[string]any{
		"company":        "acme",
		"title":          "Build importer",
		"payment_amount": 400,
	}, asActor("acme"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create bounty status %d: %s", res.StatusCode, string(body))
	}
	var created BountyResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal bounty: %v", err)
	}
	if created.ID != 1 || created.Status != "open" {
		t.Fatalf("created = %+v", created)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/1/assign", map[string]any{
		"developer": "dev-1",
	}, asActor("dev-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/1/submit", map[string]any{
		"developer": "dev-1",
	}, asActor("dev-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/1/approve", nil, asActor("acme"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(body))
	}
	var done BountyResponse
	_ = json.Unmarshal(body, &done)
	if done.Status != "completed" {
		t.Fatalf("status = %s, want completed", done.Status)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/accounts/dev-1/balances", nil, asActor("dev-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("balances status %d: %s", res.StatusCode, string(body))
	}
	var balances []BalanceResponse
	if err := json.Unmarshal(body, &balances); err != nil {
		t.Fatalf("unmarshal balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Amount != 400 {
		t.Fatalf("balances = %+v", balances)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/1/rating", map[string]any{
		"rating": 85,
	}, asActor("acme"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rating status %d: %s", res.StatusCode, string(body))
	}
	var rated DeveloperResponse
	_ = json.Unmarshal(body, &rated)
	if rated.Rating != 85 || rated.CompletedBounties != 1 {
		t.Fatalf("rated = %+v", rated)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/1/transfers", nil, asActor("acme"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transfers status %d: %s", res.StatusCode, string(body))
	}
	var transfers []TransferResponse
	if err := json.Unmarshal(body, &transfers); err != nil {
		t.Fatalf("unmarshal transfers: %v", err)
	}
	if len(transfers) != 2 || transfers[0].Kind != "escrow_lock" || transfers[1].Kind != "escrow_release" {
		t.Fatalf("transfers = %+v", transfers)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()
	client := srv.Client()

	// No credentials at all.
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status %d, want 401", res.StatusCode)
	}

	// Unknown bounty.
	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/99", nil, asActor("anyone"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing bounty status %d: %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("code = %s, want not_found", envelope.Error.Code)
	}

	// Spoofed company on create.
	srv.fund(t, client, "acme", 100)
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties", map[string]any{
		"company":        "acme",
		"title":          "Spoof",
		"payment_amount": 10,
	}, asActor("mallory"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("spoof status %d: %s", res.StatusCode, string(body))
	}

	// Escrow failure surfaces as transfer_failed.
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties", map[string]any{
		"company":        "acme",
		"title":          "Too big",
		"payment_amount": 5000,
	}, asActor("acme"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("transfer fail status %d: %s", res.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "transfer_failed" {
		t.Fatalf("code = %s, want transfer_failed", envelope.Error.Code)
	}
}

func TestDevLoginAndJWT(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "dev-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(body))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(body, &login); err != nil || login.Token == "" {
		t.Fatalf("login body: %v %s", err, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "dev-1" || me.Source != "jwt" {
		t.Fatalf("me = %+v", me)
	}
}
