// Package directory defines the role/permission collaborator consulted
// during transition authorization.
package directory

import "context"

// Directory resolves the roles granted to an actor.
type Directory interface {
	RolesOf(ctx context.Context, actorID string) ([]string, error)
}

// StaticDirectory maps actor ids to role sets in memory.
type StaticDirectory struct {
	roles map[string][]string
}

// NewStaticDirectory creates an empty static directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{roles: make(map[string][]string)}
}

// Grant assigns roles to an actor, replacing any previous assignment.
func (d *StaticDirectory) Grant(actorID string, roles ...string) {
	d.roles[actorID] = roles
}

// RolesOf returns the actor's roles; unknown actors have none.
func (d *StaticDirectory) RolesOf(_ context.Context, actorID string) ([]string, error) {
	return d.roles[actorID], nil
}
