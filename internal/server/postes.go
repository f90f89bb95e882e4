package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/repo"
)

func registerPostes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-poste",
		Method:        http.MethodPost,
		Path:          "/postes",
		Summary:       "Register a poste",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreatePosteRequest `json:"body"`
	}) (*struct {
		Body PosteResponse `json:"body"`
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
		p, err := e.CreatePoste(ctx, engine.PosteCreateOptions{
			Intitule:    input.Body.Intitule,
			GradeRequis: stringOrEmpty(input.Body.GradeRequis),
			ServiceID:   stringOrEmpty(input.Body.ServiceID),
			LocaliteID:  stringOrEmpty(input.Body.LocaliteID),
			Statut:      stringOrEmpty(input.Body.Statut),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PosteResponse `json:"body"`
		}{Body: posteResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-postes",
		Method:      http.MethodGet,
		Path:        "/postes",
		Summary:     "List postes",
	}, func(ctx context.Context, input *struct {
		Statut    string `query:"statut"`
		ServiceID string `query:"service_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []PosteResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPostes(ctx, repo.PosteFilters{
			Statut:    input.Statut,
			ServiceID: input.ServiceID,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PosteResponse `json:"body"`
		}{Body: mapPostes(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-poste",
		Method:      http.MethodGet,
		Path:        "/postes/{poste_id}",
		Summary:     "Get poste",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PosteID string `path:"poste_id"`
	}) (*struct {
		Body PosteResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetPoste(ctx, input.PosteID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PosteResponse `json:"body"`
		}{Body: posteResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-poste",
		Method:      http.MethodPatch,
		Path:        "/postes/{poste_id}",
		Summary:     "Edit a poste",
		Description: "A poste that is occupied or carries assignment history cannot be edited.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PosteID string             `path:"poste_id"`
		Body    UpdatePosteRequest `json:"body"`
	}) (*struct {
		Body PosteResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, domain.RoleDGR); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdatePoste(ctx, input.PosteID, input.Body.Intitule, input.Body.GradeRequis, input.Body.ServiceID, input.Body.LocaliteID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PosteResponse `json:"body"`
		}{Body: posteResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-poste",
		Method:        http.MethodDelete,
		Path:          "/postes/{poste_id}",
		Summary:       "Delete a poste",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PosteID string `path:"poste_id"`
	}) (*struct{}, error) {
		if err := requireRole(ctx, domain.RoleAdmin); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePoste(ctx, input.PosteID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "affecter-poste",
		Method:      http.MethodPost,
		Path:        "/postes/{poste_id}/affecter",
		Summary:     "Assign an agent to a poste",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PosteID string          `path:"poste_id"`
		Body    AffecterRequest `json:"body"`
	}) (*struct {
		Body PosteResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, domain.RoleDNCF); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.AgentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "agent_id is required", nil)
		}
		p, err := e.AssignAgentToPoste(ctx, input.PosteID, input.Body.AgentID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PosteResponse `json:"body"`
		}{Body: posteResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "liberer-poste",
		Method:      http.MethodPost,
		Path:        "/postes/{poste_id}/liberer",
		Summary:     "Release a poste",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PosteID string `path:"poste_id"`
	}) (*struct {
		Body PosteResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, domain.RoleDNCF); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ReleasePoste(ctx, input.PosteID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PosteResponse `json:"body"`
		}{Body: posteResponse(p)}, nil
	})
}
