package domain

// Demande statuses.
const (
	StatutBrouillon     = "BROUILLON"
	StatutValidationHie = "EN_VALIDATION_HIERARCHIQUE"
	StatutEtudeDGR      = "EN_ETUDE_DGR"
	StatutVerifCVR      = "EN_VERIFICATION_CVR"
	StatutEtudeDNCF     = "EN_ETUDE_DNCF"
	StatutAcceptee      = "ACCEPTEE"
	StatutRejetee       = "REJETEE"
)

// Demande types.
const (
	TypeSimple      = "SIMPLE"
	TypeStrategique = "STRATEGIQUE"
)

// Poste statuses.
const (
	PosteLibre    = "LIBRE"
	PosteOccupe   = "OCCUPE"
	PosteCritique = "CRITIQUE"
)

// Validation decisions.
const (
	DecisionValide = "VALIDE"
	DecisionRejete = "REJETE"
)

// Roles. The first four form the approval chain, in order.
const (
	RoleResponsable = "RESPONSABLE"
	RoleDGR         = "DGR"
	RoleCVR         = "CVR"
	RoleDNCF        = "DNCF"
	RoleAdmin       = "ADMIN"
	RoleAgent       = "AGENT"
)

// GateChain is the fixed approval chain, lowest authority first.
var GateChain = []string{RoleResponsable, RoleDGR, RoleCVR, RoleDNCF}

// gateStatus maps each gate role to the status a demande holds while
// awaiting that gate's decision.
var gateStatus = map[string]string{
	RoleResponsable: StatutValidationHie,
	RoleDGR:         StatutEtudeDGR,
	RoleCVR:         StatutVerifCVR,
	RoleDNCF:        StatutEtudeDNCF,
}

// StatusForGate returns the in-process status owned by a gate role.
func StatusForGate(role string) (string, bool) {
	s, ok := gateStatus[role]
	return s, ok
}

// GateForStatus is the inverse of StatusForGate.
func GateForStatus(status string) (string, bool) {
	for role, s := range gateStatus {
		if s == status {
			return role, true
		}
	}
	return "", false
}

// NextGateStatus returns the status following a decision at the given
// gate. At every gate below DNCF both VALIDE and REJETE move the
// demande forward; only DNCF closes it.
func NextGateStatus(gate, decision string) (string, bool) {
	switch gate {
	case RoleResponsable:
		return StatutEtudeDGR, true
	case RoleDGR:
		return StatutVerifCVR, true
	case RoleCVR:
		return StatutEtudeDNCF, true
	case RoleDNCF:
		if decision == DecisionValide {
			return StatutAcceptee, true
		}
		return StatutRejetee, true
	}
	return "", false
}

// EntryStatus returns the status a demande enters the chain at when
// submitted by the given role. Higher-authority submitters skip the
// gates below their own.
func EntryStatus(role string) string {
	switch role {
	case RoleDGR:
		return StatutEtudeDGR
	case RoleCVR:
		return StatutVerifCVR
	case RoleDNCF, RoleAdmin:
		return StatutEtudeDNCF
	default:
		return StatutValidationHie
	}
}

// PrimaryRole picks the single role used where one is needed (workflow
// entry point, display). First role wins; empty set means plain agent.
func PrimaryRole(roles []string) string {
	if len(roles) == 0 {
		return RoleAgent
	}
	return roles[0]
}

// HasRole reports whether roles contains want.
func HasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a demande status admits no further
// transitions.
func IsTerminal(status string) bool {
	return status == StatutAcceptee || status == StatutRejetee
}
