// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package identity

import (
	"github.com/google/uuid"

	"quillpress/internal/models"
)

// Actor is the principal on whose behalf an operation runs. It is passed
// explicitly to every operation that checks permissions.
type Actor struct {
	UserID uuid.UUID
	Role   models.Role
	System bool
}

// SystemActor is used by background jobs such as the publish sweeper.
var SystemActor = Actor{Role: models.RoleAdmin, System: true}

// ActorFor returns the actor representing u.
func ActorFor(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

// Elevated reports whether the actor may manage content owned by others.
func (a Actor) Elevated() bool {
	return a.System || a.Role.Elevated()
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.System || a.Role == models.RoleAdmin
}
