package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/repo"
)

func engineNow(e engine.Engine) time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func agentWithSeniority(e engine.Engine, a domain.Agent) AgentResponse {
	anciennete, err := engine.Anciennete(a.DateEmbauche, engineNow(e))
	if err != nil {
		anciennete = 0
	}
	return agentResponse(a, anciennete, e.Priorite(anciennete))
}

func registerAgents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Register an agent",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAgentRequest `json:"body"`
	}) (*struct {
		Body AgentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, domain.RoleDGR); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAgent(ctx, engine.AgentCreateOptions{
			Matricule:     input.Body.Matricule,
			Nom:           input.Body.Nom,
			Prenom:        input.Body.Prenom,
			DateNaissance: stringOrEmpty(input.Body.DateNaissance),
			DateEmbauche:  input.Body.DateEmbauche,
			NumeroCNI:     stringOrEmpty(input.Body.NumeroCNI),
			GradeID:       stringOrEmpty(input.Body.GradeID),
			ServiceID:     stringOrEmpty(input.Body.ServiceID),
			LocaliteID:    stringOrEmpty(input.Body.LocaliteID),
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentResponse `json:"body"`
		}{Body: agentWithSeniority(e, a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agents",
	}, func(ctx context.Context, input *struct {
		ServiceID string `query:"service_id"`
		Statut    string `query:"statut"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []AgentResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAgents(ctx, repo.AgentFilters{
			ServiceID: input.ServiceID,
			Statut:    input.Statut,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := []AgentResponse{}
		for _, a := range items {
			res = append(res, agentWithSeniority(e, a))
		}
		return &struct {
			Body []AgentResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}",
		Summary:     "Get agent with assignment history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body AgentResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAgent(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		affectations, err := e.Repo.ListAffectations(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := agentWithSeniority(e, a)
		for _, af := range affectations {
			resp.Affectations = append(resp.Affectations, affectationResponse(af))
		}
		return &struct {
			Body AgentResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agent-affectations",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/affectations",
		Summary:     "List an agent's assignment history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body []AffectationResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetAgent(ctx, input.AgentID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAffectations(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		res := []AffectationResponse{}
		for _, af := range items {
			res = append(res, affectationResponse(af))
		}
		return &struct {
			Body []AffectationResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-agent",
		Method:        http.MethodDelete,
		Path:          "/agents/{agent_id}",
		Summary:       "Delete an agent",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct{}, error) {
		if err := requireRole(ctx, domain.RoleAdmin); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAgent(ctx, input.AgentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
