package domain

// Role is an organizational role carried by an actor. Roles gate elevated
// operations: emergency stops, resuming halted work, dispute arbitration and
// resolving escalated transactions.
type Role string

const (
	RoleBrandOwner   Role = "brand_owner"
	RoleSecurityTeam Role = "security_team"
	RoleArbitrator   Role = "arbitrator"
	RoleAdmin        Role = "admin"
)

// SystemActorID attributes self-inflicted transitions (timeouts, automatic
// stops, synthesized confirmations) in history entries.
const SystemActorID PartyID = "system"

// Actor is whoever requests an operation. Party is the organization acting;
// System marks transitions the core performs on its own behalf.
type Actor struct {
	Party  PartyID
	Roles  []Role
	System bool
}

// System returns the actor used for core-initiated operations.
func System() Actor {
	return Actor{Party: SystemActorID, System: true}
}

// Party returns an actor acting for a single organization.
func Party(id PartyID, roles ...Role) Actor {
	return Actor{Party: id, Roles: roles}
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor holds at least one of roles.
func (a Actor) HasAnyRole(roles []Role) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// ID returns the identifier recorded in history and audit entries.
func (a Actor) ID() string {
	if a.System {
		return string(SystemActorID)
	}
	return string(a.Party)
}
