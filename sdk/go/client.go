package mutalinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Mutaline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Demande represents the API mutation request model (partial).
type Demande struct {
	ID                  string       `json:"id"`
	Type                string       `json:"type"`
	AgentID             string       `json:"agent_id,omitempty"`
	Motif               string       `json:"motif"`
	PosteSouhaiteID     string       `json:"poste_souhaite_id,omitempty"`
	LocalitesSouhaitees []string     `json:"localites_souhaitees,omitempty"`
	Statut              string       `json:"statut"`
	DateMutation        string       `json:"date_mutation,omitempty"`
	Validations         []Validation `json:"validations,omitempty"`
	CreatedAt           string       `json:"created_at"`
	UpdatedAt           string       `json:"updated_at"`
}

// Validation represents one gate decision on a demande.
type Validation struct {
	ID           string `json:"id"`
	DemandeID    string `json:"demande_id"`
	Role         string `json:"role"`
	ValidateurID string `json:"validateur_id"`
	Decision     string `json:"decision"`
	Commentaire  string `json:"commentaire,omitempty"`
	DecideeLe    string `json:"decidee_le"`
}

// Agent represents the API agent model (partial).
type Agent struct {
	ID         string `json:"id"`
	Matricule  string `json:"matricule"`
	Nom        string `json:"nom"`
	Prenom     string `json:"prenom"`
	GradeID    string `json:"grade_id,omitempty"`
	ServiceID  string `json:"service_id,omitempty"`
	Statut     string `json:"statut"`
	Anciennete int    `json:"anciennete"`
	Priorite   int    `json:"priorite"`
}

// Poste represents the API poste model (partial).
type Poste struct {
	ID          string `json:"id"`
	Intitule    string `json:"intitule"`
	GradeRequis string `json:"grade_requis,omitempty"`
	ServiceID   string `json:"service_id,omitempty"`
	LocaliteID  string `json:"localite_id,omitempty"`
	Statut      string `json:"statut"`
	OccupantID  string `json:"occupant_id,omitempty"`
}

// Event represents a log entry. Payload carries the raw JSON payload.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// SweepResult reports one sweep run.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Applied    int `json:"applied"`
	Failed     int `json:"failed"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDemande creates a mutation request in BROUILLON.
func (c *Client) CreateDemande(ctx context.Context, agentID, motif, posteSouhaiteID string, localites []string) (Demande, error) {
	body := map[string]any{
		"motif": motif,
	}
	if agentID != "" {
		body["agent_id"] = agentID
	}
	if posteSouhaiteID != "" {
		body["poste_souhaite_id"] = posteSouhaiteID
	}
	if len(localites) > 0 {
		body["localites_souhaitees"] = localites
	}
	var resp Demande
	err := c.do(ctx, http.MethodPost, "v0/demandes", body, &resp)
	return resp, err
}

// GetDemande fetches a demande with its validation records.
func (c *Client) GetDemande(ctx context.Context, id string) (Demande, error) {
	var resp Demande
	err := c.do(ctx, http.MethodGet, "v0/demandes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListDemandes returns demandes, optionally filtered by statut.
func (c *Client) ListDemandes(ctx context.Context, statut string, limit int) ([]Demande, error) {
	endpoint := "v0/demandes"
	q := url.Values{}
	if statut != "" {
		q.Set("statut", statut)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Demande
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Soumettre submits a draft demande into the approval chain.
func (c *Client) Soumettre(ctx context.Context, id string) (Demande, error) {
	var resp Demande
	endpoint := fmt.Sprintf("v0/demandes/%s/soumettre", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// Valider records the pending gate's decision on a demande.
func (c *Client) Valider(ctx context.Context, id, decision, commentaire, dateMutation string) (Validation, error) {
	body := map[string]any{
		"decision": decision,
	}
	if commentaire != "" {
		body["commentaire"] = commentaire
	}
	if dateMutation != "" {
		body["date_mutation"] = dateMutation
	}
	var resp Validation
	endpoint := fmt.Sprintf("v0/demandes/%s/validations", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListValidations returns the gate decisions recorded on a demande.
func (c *Client) ListValidations(ctx context.Context, demandeID string) ([]Validation, error) {
	var resp []Validation
	endpoint := fmt.Sprintf("v0/demandes/%s/validations", url.PathEscape(demandeID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetAgent fetches an agent with computed seniority and priority.
func (c *Client) GetAgent(ctx context.Context, id string) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodGet, "v0/agents/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// GetPoste fetches a poste.
func (c *Client) GetPoste(ctx context.Context, id string) (Poste, error) {
	var resp Poste
	err := c.do(ctx, http.MethodGet, "v0/postes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// RunSweep applies every due accepted mutation and reports counts.
func (c *Client) RunSweep(ctx context.Context) (SweepResult, error) {
	var resp SweepResult
	err := c.do(ctx, http.MethodPost, "v0/mutations/sweep", map[string]any{}, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
