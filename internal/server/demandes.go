package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/repo"
)

func registerDemandes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-demande",
		Method:        http.MethodPost,
		Path:          "/demandes",
		Summary:       "Create mutation request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDemandeRequest `json:"body"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Motif == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "motif is required", nil)
		}
		opts := engine.DemandeCreateOptions{
			Type:                domain.TypeSimple,
			Motif:               input.Body.Motif,
			LocalitesSouhaitees: input.Body.LocalitesSouhaitees,
			CreatorRoles:        rolesFromContext(ctx),
			ActorID:             actorID,
		}
		if input.Body.AgentID != nil {
			opts.AgentID = *input.Body.AgentID
		}
		if input.Body.PosteSouhaiteID != nil {
			opts.PosteSouhaiteID = *input.Body.PosteSouhaiteID
		}
		d, err := e.CreateDemande(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-demande-publique",
		Method:        http.MethodPost,
		Path:          "/demandes/publique",
		Summary:       "Submit a public mutation request",
		Description:   "Open endpoint for external requesters without an account. The request enters the approval chain immediately, tied to the requester's contact details.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreatePublicDemandeRequest `json:"body"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Motif == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "motif is required", nil)
		}
		dem := input.Body.Demandeur
		if dem.Nom == "" || dem.Prenom == "" || dem.Email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "demandeur nom, prenom and email are required", nil)
		}
		opts := engine.DemandeCreateOptions{
			Motif:               input.Body.Motif,
			LocalitesSouhaitees: input.Body.LocalitesSouhaitees,
			Demandeur: &domain.Demandeur{
				Nom:       dem.Nom,
				Prenom:    dem.Prenom,
				Email:     dem.Email,
				Telephone: dem.Telephone,
			},
		}
		if input.Body.PosteSouhaiteID != nil {
			opts.PosteSouhaiteID = *input.Body.PosteSouhaiteID
		}
		d, err := e.CreatePublicDemande(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-demande-strategique",
		Method:        http.MethodPost,
		Path:          "/demandes/strategique",
		Summary:       "Create strategic mutation request",
		Description:   "Strategic requests are reserved to DNCF and ADMIN and enter the chain directly at the DNCF gate.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDemandeRequest `json:"body"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
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
		if input.Body.Motif == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "motif is required", nil)
		}
		opts := engine.DemandeCreateOptions{
			Type:                domain.TypeStrategique,
			Motif:               input.Body.Motif,
			LocalitesSouhaitees: input.Body.LocalitesSouhaitees,
			CreatorRoles:        rolesFromContext(ctx),
			ActorID:             actorID,
		}
		if input.Body.AgentID != nil {
			opts.AgentID = *input.Body.AgentID
		}
		if input.Body.PosteSouhaiteID != nil {
			opts.PosteSouhaiteID = *input.Body.PosteSouhaiteID
		}
		d, err := e.CreateStrategique(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-demandes",
		Method:      http.MethodGet,
		Path:        "/demandes",
		Summary:     "List mutation requests",
	}, func(ctx context.Context, input *struct {
		Statut  string `query:"statut"`
		Type    string `query:"type"`
		AgentID string `query:"agent_id"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body []DemandeResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListDemandes(ctx, repo.DemandeFilters{
			Statut:  input.Statut,
			Type:    input.Type,
			AgentID: input.AgentID,
			Limit:   input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DemandeResponse `json:"body"`
		}{Body: mapDemandes(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-demande",
		Method:      http.MethodGet,
		Path:        "/demandes/{demande_id}",
		Summary:     "Get mutation request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DemandeID string `path:"demande_id"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.GetDemande(ctx, input.DemandeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-demande",
		Method:      http.MethodPatch,
		Path:        "/demandes/{demande_id}",
		Summary:     "Edit a draft mutation request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		DemandeID string               `path:"demande_id"`
		Body      UpdateDemandeRequest `json:"body"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.DemandeUpdateOptions{
			ID:                  input.DemandeID,
			Motif:               input.Body.Motif,
			PosteSouhaiteID:     input.Body.PosteSouhaiteID,
			LocalitesSouhaitees: input.Body.LocalitesSouhaitees,
			ActorID:             actorID,
		}
		// An explicit null clears the desired poste; an absent field
		// leaves it untouched.
		if raw := rawBodyMap(ctx); opts.PosteSouhaiteID == nil {
			if v, ok := raw["poste_souhaite_id"]; ok && string(v) == "null" {
				empty := ""
				opts.PosteSouhaiteID = &empty
			}
		}
		d, err := e.UpdateDemande(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "soumettre-demande",
		Method:      http.MethodPost,
		Path:        "/demandes/{demande_id}/soumettre",
		Summary:     "Submit a draft into the approval chain",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		DemandeID string `path:"demande_id"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Soumettre(ctx, input.DemandeID, rolesFromContext(ctx), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "appliquer-demande",
		Method:      http.MethodPost,
		Path:        "/demandes/{demande_id}/appliquer",
		Summary:     "Apply an accepted mutation to the agent and poste",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		DemandeID string `path:"demande_id"`
	}) (*struct {
		Body DemandeResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, domain.RoleDNCF); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ApplyDemande(ctx, input.DemandeID, actorID); err != nil {
			return nil, handleError(err)
		}
		d, err := e.GetDemande(ctx, input.DemandeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DemandeResponse `json:"body"`
		}{Body: demandeResponse(d)}, nil
	})
}

func registerValidations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-validation",
		Method:        http.MethodPost,
		Path:          "/demandes/{demande_id}/validations",
		Summary:       "Record a gate decision",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		DemandeID string                  `path:"demande_id"`
		Body      RecordValidationRequest `json:"body"`
	}) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Repo.GetDemande(ctx, input.DemandeID)
		if err != nil {
			return nil, handleError(err)
		}
		gate, ok := domain.GateForStatus(d.Statut)
		if !ok {
			return nil, handleError(&engine.RequestLockedError{ID: d.ID, Statut: d.Statut})
		}
		if err := requireRole(ctx, gate); err != nil {
			return nil, err
		}
		v, err := e.RecordValidation(ctx, engine.ValidationOptions{
			DemandeID:    input.DemandeID,
			Role:         gate,
			ValidateurID: actorID,
			Decision:     input.Body.Decision,
			Commentaire:  stringOrEmpty(input.Body.Commentaire),
			DateMutation: input.Body.DateMutation,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: validationResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-validations",
		Method:      http.MethodGet,
		Path:        "/demandes/{demande_id}/validations",
		Summary:     "List gate decisions for a request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DemandeID string `path:"demande_id"`
	}) (*struct {
		Body []ValidationResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetDemande(ctx, input.DemandeID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListValidationsByDemande(ctx, input.DemandeID)
		if err != nil {
			return nil, handleError(err)
		}
		res := []ValidationResponse{}
		for _, v := range items {
			res = append(res, validationResponse(v))
		}
		return &struct {
			Body []ValidationResponse `json:"body"`
		}{Body: res}, nil
	})
}
