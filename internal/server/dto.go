package server

import (
	"mutaline/internal/domain"
)

// Request payloads

type DemandeurRequest struct {
	Nom       string  `json:"nom"`
	Prenom    string  `json:"prenom"`
	Email     string  `json:"email" format:"email"`
	Telephone *string `json:"telephone,omitempty"`
}

type CreateDemandeRequest struct {
	AgentID             *string  `json:"agent_id,omitempty"`
	Motif               string   `json:"motif"`
	PosteSouhaiteID     *string  `json:"poste_souhaite_id,omitempty"`
	LocalitesSouhaitees []string `json:"localites_souhaitees,omitempty"`
}

type CreatePublicDemandeRequest struct {
	Demandeur           DemandeurRequest `json:"demandeur"`
	Motif               string           `json:"motif"`
	PosteSouhaiteID     *string          `json:"poste_souhaite_id,omitempty"`
	LocalitesSouhaitees []string         `json:"localites_souhaitees,omitempty"`
}

type UpdateDemandeRequest struct {
	Motif               *string  `json:"motif,omitempty"`
	PosteSouhaiteID     *string  `json:"poste_souhaite_id,omitempty"`
	LocalitesSouhaitees []string `json:"localites_souhaitees,omitempty"`
}

type RecordValidationRequest struct {
	Decision     string  `json:"decision" enum:"VALIDE,REJETE"`
	Commentaire  *string `json:"commentaire,omitempty"`
	DateMutation *string `json:"date_mutation,omitempty" format:"date-time"`
}

type CreateAgentRequest struct {
	Matricule     string  `json:"matricule"`
	Nom           string  `json:"nom"`
	Prenom        string  `json:"prenom"`
	DateNaissance *string `json:"date_naissance,omitempty" format:"date-time"`
	DateEmbauche  string  `json:"date_embauche" format:"date-time"`
	NumeroCNI     *string `json:"numero_cni,omitempty"`
	GradeID       *string `json:"grade_id,omitempty"`
	ServiceID     *string `json:"service_id,omitempty"`
	LocaliteID    *string `json:"localite_id,omitempty"`
}

type CreatePosteRequest struct {
	Intitule    string  `json:"intitule"`
	GradeRequis *string `json:"grade_requis,omitempty"`
	ServiceID   *string `json:"service_id,omitempty"`
	LocaliteID  *string `json:"localite_id,omitempty"`
	Statut      *string `json:"statut,omitempty" enum:"LIBRE,CRITIQUE"`
}

type UpdatePosteRequest struct {
	Intitule    *string `json:"intitule,omitempty"`
	GradeRequis *string `json:"grade_requis,omitempty"`
	ServiceID   *string `json:"service_id,omitempty"`
	LocaliteID  *string `json:"localite_id,omitempty"`
}

type AffecterRequest struct {
	AgentID string `json:"agent_id"`
}

// Response payloads

type DemandeResponse struct {
	ID                  string               `json:"id"`
	Type                string               `json:"type" enum:"SIMPLE,STRATEGIQUE"`
	AgentID             *string              `json:"agent_id,omitempty"`
	Motif               string               `json:"motif"`
	PosteSouhaiteID     *string              `json:"poste_souhaite_id,omitempty"`
	LocalitesSouhaitees []string             `json:"localites_souhaitees,omitempty"`
	Statut              string               `json:"statut"`
	DateSoumission      *string              `json:"date_soumission,omitempty" format:"date-time"`
	DateMutation        *string              `json:"date_mutation,omitempty" format:"date-time"`
	Demandeur           *DemandeurRequest    `json:"demandeur,omitempty"`
	Validations         []ValidationResponse `json:"validations,omitempty"`
	CreatedAt           string               `json:"created_at" format:"date-time"`
	UpdatedAt           string               `json:"updated_at" format:"date-time"`
}

type ValidationResponse struct {
	ID           string `json:"id"`
	DemandeID    string `json:"demande_id"`
	Role         string `json:"role"`
	ValidateurID string `json:"validateur_id"`
	Decision     string `json:"decision"`
	Commentaire  string `json:"commentaire,omitempty"`
	DecideeLe    string `json:"decidee_le" format:"date-time"`
}

type AgentResponse struct {
	ID            string  `json:"id"`
	Matricule     string  `json:"matricule"`
	Nom           string  `json:"nom"`
	Prenom        string  `json:"prenom"`
	DateNaissance *string `json:"date_naissance,omitempty" format:"date-time"`
	DateEmbauche  string  `json:"date_embauche" format:"date-time"`
	GradeID       *string `json:"grade_id,omitempty"`
	ServiceID     *string `json:"service_id,omitempty"`
	LocaliteID    *string `json:"localite_id,omitempty"`
	Statut        string  `json:"statut"`
	Anciennete    int     `json:"anciennete"`
	Priorite      int     `json:"priorite"`
	CreatedAt     string  `json:"created_at" format:"date-time"`

	Affectations []AffectationResponse `json:"affectations,omitempty"`
}

type AffectationResponse struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	PosteID   string  `json:"poste_id"`
	DateDebut string  `json:"date_debut" format:"date-time"`
	DateFin   *string `json:"date_fin,omitempty" format:"date-time"`
	MotifFin  *string `json:"motif_fin,omitempty"`
}

type PosteResponse struct {
	ID          string  `json:"id"`
	Intitule    string  `json:"intitule"`
	GradeRequis *string `json:"grade_requis,omitempty"`
	ServiceID   *string `json:"service_id,omitempty"`
	LocaliteID  *string `json:"localite_id,omitempty"`
	Statut      string  `json:"statut" enum:"LIBRE,OCCUPE,CRITIQUE"`
	OccupantID  *string `json:"occupant_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type NotificationResponse struct {
	ID        string  `json:"id"`
	Titre     string  `json:"titre"`
	Message   string  `json:"message"`
	DemandeID *string `json:"demande_id,omitempty"`
	Lu        bool    `json:"lu"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

func demandeResponse(d domain.Demande) DemandeResponse {
	resp := DemandeResponse{
		ID:                  d.ID,
		Type:                d.Type,
		AgentID:             d.AgentID,
		Motif:               d.Motif,
		PosteSouhaiteID:     d.PosteSouhaiteID,
		LocalitesSouhaitees: d.LocalitesSouhaitees,
		Statut:              d.Statut,
		DateSoumission:      d.DateSoumission,
		DateMutation:        d.DateMutation,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if d.Demandeur != nil {
		resp.Demandeur = &DemandeurRequest{
			Nom:       d.Demandeur.Nom,
			Prenom:    d.Demandeur.Prenom,
			Email:     d.Demandeur.Email,
			Telephone: d.Demandeur.Telephone,
		}
	}
	for _, v := range d.Validations {
		resp.Validations = append(resp.Validations, validationResponse(v))
	}
	return resp
}

func mapDemandes(items []domain.Demande) []DemandeResponse {
	res := []DemandeResponse{}
	for _, d := range items {
		res = append(res, demandeResponse(d))
	}
	return res
}

func validationResponse(v domain.Validation) ValidationResponse {
	return ValidationResponse{
		ID:           v.ID,
		DemandeID:    v.DemandeID,
		Role:         v.Role,
		ValidateurID: v.ValidateurID,
		Decision:     v.Decision,
		Commentaire:  v.Commentaire,
		DecideeLe:    v.DecideeLe,
	}
}

func agentResponse(a domain.Agent, anciennete, priorite int) AgentResponse {
	return AgentResponse{
		ID:            a.ID,
		Matricule:     a.Matricule,
		Nom:           a.Nom,
		Prenom:        a.Prenom,
		DateNaissance: a.DateNaissance,
		DateEmbauche:  a.DateEmbauche,
		GradeID:       a.GradeID,
		ServiceID:     a.ServiceID,
		LocaliteID:    a.LocaliteID,
		Statut:        a.Statut,
		Anciennete:    anciennete,
		Priorite:      priorite,
		CreatedAt:     a.CreatedAt,
	}
}

func affectationResponse(af domain.Affectation) AffectationResponse {
	return AffectationResponse{
		ID:        af.ID,
		AgentID:   af.AgentID,
		PosteID:   af.PosteID,
		DateDebut: af.DateDebut,
		DateFin:   af.DateFin,
		MotifFin:  af.MotifFin,
	}
}

func posteResponse(p domain.Poste) PosteResponse {
	return PosteResponse{
		ID:          p.ID,
		Intitule:    p.Intitule,
		GradeRequis: p.GradeRequis,
		ServiceID:   p.ServiceID,
		LocaliteID:  p.LocaliteID,
		Statut:      p.Statut,
		OccupantID:  p.OccupantID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapPostes(items []domain.Poste) []PosteResponse {
	res := []PosteResponse{}
	for _, p := range items {
		res = append(res, posteResponse(p))
	}
	return res
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Titre:     n.Titre,
		Message:   n.Message,
		DemandeID: n.DemandeID,
		Lu:        n.Lu,
		CreatedAt: n.CreatedAt,
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
