package post

import (
	"github.com/google/uuid"

	"poll-engine/internal/domain/user"
)

type AccessKind string

const (
	AccessOwner        AccessKind = "owner"
	AccessCollaborator AccessKind = "collaborator"
	AccessNone         AccessKind = "none"
)

// Access is the resolved relationship between a user and a post.
// CollaboratorRole is only set when Kind is AccessCollaborator.
type Access struct {
	Kind             AccessKind
	CollaboratorRole string
}

// ResolveRole is the single authorization primitive for poll mutations:
// every create/update/delete and every analytics/export read goes
// through it, nothing inspects the collaborator list directly.
func ResolveRole(p *Post, userID uuid.UUID) Access {
	if p == nil {
		return Access{Kind: AccessNone}
	}
	if p.AuthorID == userID {
		return Access{Kind: AccessOwner}
	}
	for _, c := range p.Collaborators {
		if c.UserID == userID {
			return Access{Kind: AccessCollaborator, CollaboratorRole: c.Role}
		}
	}
	return Access{Kind: AccessNone}
}

// CanManage reports whether the requester may create, edit, or delete the
// post's poll, or read its restricted analytics.
func CanManage(p *Post, req user.Requester) bool {
	if req.IsAdmin() {
		return true
	}
	return ResolveRole(p, req.ID).Kind != AccessNone
}
