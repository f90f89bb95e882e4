package domain

type Agent struct {
	ID            string        `json:"id"`
	Matricule     string        `json:"matricule"`
	Nom           string        `json:"nom"`
	Prenom        string        `json:"prenom"`
	DateNaissance *string       `json:"date_naissance,omitempty" format:"date-time"`
	DateEmbauche  string        `json:"date_embauche" format:"date-time"`
	NumeroCNI     *string       `json:"numero_cni,omitempty"`
	GradeID       *string       `json:"grade_id,omitempty"`
	ServiceID     *string       `json:"service_id,omitempty"`
	LocaliteID    *string       `json:"localite_id,omitempty"`
	Statut        string        `json:"statut" enum:"ACTIF,RETRAITE,DETACHE,SUSPENDU"`
	Affectations  []Affectation `json:"affectations,omitempty"`
	CreatedAt     string        `json:"created_at" format:"date-time"`
	UpdatedAt     string        `json:"updated_at" format:"date-time"`
}

// Affectation is one time-bounded assignment of an agent to a poste.
// At most one row per agent has a null DateFin; the affectations engine
// is the only writer of these rows.
type Affectation struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	PosteID   string  `json:"poste_id"`
	DateDebut string  `json:"date_debut" format:"date-time"`
	DateFin   *string `json:"date_fin,omitempty" format:"date-time"`
	MotifFin  *string `json:"motif_fin,omitempty"`
}

type Poste struct {
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

type Demande struct {
	ID                  string       `json:"id"`
	Type                string       `json:"type" enum:"SIMPLE,STRATEGIQUE"`
	AgentID             *string      `json:"agent_id,omitempty"`
	Motif               string       `json:"motif"`
	PosteSouhaiteID     *string      `json:"poste_souhaite_id,omitempty"`
	LocalitesSouhaitees []string     `json:"localites_souhaitees,omitempty"`
	Statut              string       `json:"statut" enum:"BROUILLON,EN_VALIDATION_HIERARCHIQUE,EN_ETUDE_DGR,EN_VERIFICATION_CVR,EN_ETUDE_DNCF,ACCEPTEE,REJETEE"`
	DateSoumission      *string      `json:"date_soumission,omitempty" format:"date-time"`
	DateMutation        *string      `json:"date_mutation,omitempty" format:"date-time"`
	Demandeur           *Demandeur   `json:"demandeur,omitempty"`
	Validations         []Validation `json:"validations,omitempty"`
	CreatedAt           string       `json:"created_at" format:"date-time"`
	UpdatedAt           string       `json:"updated_at" format:"date-time"`
}

// Demandeur holds inline applicant details for public submissions that
// carry no agent reference.
type Demandeur struct {
	Nom       string  `json:"nom"`
	Prenom    string  `json:"prenom"`
	Email     string  `json:"email"`
	Telephone *string `json:"telephone,omitempty"`
}

type Validation struct {
	ID           string  `json:"id"`
	DemandeID    string  `json:"demande_id"`
	Role         string  `json:"role" enum:"RESPONSABLE,DGR,CVR,DNCF"`
	ValidateurID string  `json:"validateur_id"`
	Decision     string  `json:"decision" enum:"VALIDE,REJETE"`
	Commentaire  string  `json:"commentaire,omitempty"`
	DecideeLe    string  `json:"decidee_le" format:"date-time"`
}

type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Nom       string   `json:"nom"`
	Roles     []string `json:"roles"`
	ServiceID *string  `json:"service_id,omitempty"`
	AgentID   *string  `json:"agent_id,omitempty"`
	Active    bool     `json:"active"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Titre     string  `json:"titre"`
	Message   string  `json:"message"`
	DemandeID *string `json:"demande_id,omitempty"`
	Lu        bool    `json:"lu"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
