package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mutaline/internal/config"
	"mutaline/internal/db"
	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

const testJWTSecret = "test-secret"

// adminHeaders mints a bearer token for an ADMIN principal.
var adminHeaders map[string]string

func init() {
	adminHeaders = bearerHeaders("tester", "ADMIN")
}

func bearerHeaders(subject string, roles ...string) map[string]string {
	claims := jwt.MapClaims{
		"sub":   subject,
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		panic(err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
		},
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

func seedAgentAndPoste(t *testing.T, srv *testServer) (string, string) {
	t.Helper()
	client := srv.Client()
	embauche := time.Now().UTC().AddDate(-10, 0, 0).Format(time.RFC3339)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/agents", map[string]any{
		"matricule":     "MAT-001",
		"nom":           "Diop",
		"prenom":        "Awa",
		"date_embauche": embauche,
		"grade_id":      "A1",
		"service_id":    "SVC-NORD",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create agent: %d %s", res.StatusCode, string(data))
	}
	var agent AgentResponse
	if err := json.Unmarshal(data, &agent); err != nil {
		t.Fatalf("unmarshal agent: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/postes", map[string]any{
		"intitule":     "Chef de bureau",
		"grade_requis": "A1",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create poste: %d %s", res.StatusCode, string(data))
	}
	var poste PosteResponse
	if err := json.Unmarshal(data, &poste); err != nil {
		t.Fatalf("unmarshal poste: %v", err)
	}
	return agent.ID, poste.ID
}

func createAndSubmit(t *testing.T, srv *testServer, agentID, posteID string) DemandeResponse {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes", map[string]any{
		"agent_id":          agentID,
		"motif":             "Rapprochement familial",
		"poste_souhaite_id": posteID,
	}, map[string]string{"X-Actor-Id": agentID})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create demande: %d %s", res.StatusCode, string(data))
	}
	var d DemandeResponse
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal demande: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes/"+d.ID+"/soumettre", nil, map[string]string{"X-Actor-Id": agentID})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("soumettre: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal submitted demande: %v", err)
	}
	return d
}

func TestFullApprovalChainAppliesMutation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	agentID, posteID := seedAgentAndPoste(t, srv)

	d := createAndSubmit(t, srv, agentID, posteID)
	if d.Statut != domain.StatutValidationHie {
		t.Fatalf("expected %s after submission, got %s", domain.StatutValidationHie, d.Statut)
	}

	expected := []string{
		domain.StatutEtudeDGR,
		domain.StatutVerifCVR,
		domain.StatutEtudeDNCF,
		domain.StatutAcceptee,
	}
	for i, want := range expected {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes/"+d.ID+"/validations", map[string]any{
			"decision": "VALIDE",
		}, adminHeaders)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("validation %d: %d %s", i, res.StatusCode, string(data))
		}
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/demandes/"+d.ID, nil, adminHeaders)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get demande: %d %s", res.StatusCode, string(data))
		}
		var got DemandeResponse
		_ = json.Unmarshal(data, &got)
		if got.Statut != want {
			t.Fatalf("after gate %d expected %s, got %s", i, want, got.Statut)
		}
	}

	// Final approval without an effective date applies immediately.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/postes/"+posteID, nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get poste: %d %s", res.StatusCode, string(data))
	}
	var p PosteResponse
	_ = json.Unmarshal(data, &p)
	if p.Statut != domain.PosteOccupe {
		t.Fatalf("expected poste %s, got %s", domain.PosteOccupe, p.Statut)
	}
	if p.OccupantID == nil || *p.OccupantID != agentID {
		t.Fatalf("expected occupant %s, got %v", agentID, p.OccupantID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agents/"+agentID+"/affectations", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list affectations: %d %s", res.StatusCode, string(data))
	}
	var history []AffectationResponse
	_ = json.Unmarshal(data, &history)
	open := 0
	for _, af := range history {
		if af.DateFin == nil {
			open++
		}
	}
	if open != 1 {
		t.Fatalf("expected exactly one open affectation, got %d", open)
	}
}

func TestRejectionBelowDNCFContinuesChain(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	agentID, posteID := seedAgentAndPoste(t, srv)
	d := createAndSubmit(t, srv, agentID, posteID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes/"+d.ID+"/validations", map[string]any{
		"decision":    "REJETE",
		"commentaire": "Avis défavorable",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("reject: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/demandes/"+d.ID, nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get demande: %d %s", res.StatusCode, string(data))
	}
	var got DemandeResponse
	_ = json.Unmarshal(data, &got)
	if got.Statut != domain.StatutEtudeDGR {
		t.Fatalf("a non-final rejection should still advance, got %s", got.Statut)
	}
}

func TestDraftLockedAfterSubmission(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	agentID, posteID := seedAgentAndPoste(t, srv)
	d := createAndSubmit(t, srv, agentID, posteID)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/demandes/"+d.ID, map[string]any{
		"motif": "Nouveau motif",
	}, adminHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for locked demande, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "request_locked" {
		t.Fatalf("expected request_locked, got %q", envelope.Error.Code)
	}
}

func TestPublicDemandeNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes/publique", map[string]any{
		"motif": "Candidature externe",
		"demandeur": map[string]any{
			"nom":    "Ba",
			"prenom": "Moussa",
			"email":  "moussa.ba@example.org",
		},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("public demande: %d %s", res.StatusCode, string(data))
	}
	var d DemandeResponse
	_ = json.Unmarshal(data, &d)
	// No authenticated submit path exists for the requester, so the
	// demande enters the chain right away.
	if d.Statut != domain.StatutValidationHie {
		t.Fatalf("public demande should enter the chain, got %s", d.Statut)
	}
	if d.DateSoumission == nil {
		t.Fatal("public demande should carry a submission date")
	}
	if d.Demandeur == nil || d.Demandeur.Email != "moussa.ba@example.org" {
		t.Fatalf("demandeur not persisted: %+v", d.Demandeur)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/demandes", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestPosteWithHistoryCannotBeDeleted(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	agentID, posteID := seedAgentAndPoste(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/postes/"+posteID+"/affecter", map[string]any{
		"agent_id": agentID,
	}, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("affecter: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/postes/"+posteID+"/liberer", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("liberer: %d %s", res.StatusCode, string(data))
	}

	// Released but its history remains, so it stays immutable.
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/postes/"+posteID, nil, adminHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for poste with history, got %d %s", res.StatusCode, string(data))
	}
}

func TestStrategiqueRequiresPrivilegedRole(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	agentID, posteID := seedAgentAndPoste(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes/strategique", map[string]any{
		"agent_id": agentID,
		"motif":    "Réorganisation",
	}, bearerHeaders(agentID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unprivileged creator, got %d %s", res.StatusCode, string(data))
	}

	// An ADMIN token may create strategic demandes; they enter directly
	// at the DNCF gate.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes/strategique", map[string]any{
		"agent_id":          agentID,
		"motif":             "Réorganisation",
		"poste_souhaite_id": posteID,
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("strategique: %d %s", res.StatusCode, string(data))
	}
	var d DemandeResponse
	_ = json.Unmarshal(data, &d)
	if d.Type != domain.TypeStrategique {
		t.Fatalf("expected type %s, got %s", domain.TypeStrategique, d.Type)
	}
	if d.Statut != domain.StatutEtudeDNCF {
		t.Fatalf("expected %s, got %s", domain.StatutEtudeDNCF, d.Statut)
	}

	// A privileged creator of a plain demande also skips the gates
	// below their own.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/demandes", map[string]any{
		"agent_id":          agentID,
		"motif":             "Réorganisation",
		"poste_souhaite_id": posteID,
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create demande: %d %s", res.StatusCode, string(data))
	}
	var simple DemandeResponse
	_ = json.Unmarshal(data, &simple)
	if simple.Statut != domain.StatutEtudeDNCF {
		t.Fatalf("privileged creator should enter at %s, got %s", domain.StatutEtudeDNCF, simple.Statut)
	}
}
