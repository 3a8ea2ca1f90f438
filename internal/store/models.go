package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DefaultDocumentName is used when a document is created or renamed to an
// empty string.
const DefaultDocumentName = "Untitled Document"

type Document struct {
	ID        string
	Name      string
	Content   string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collaborator is the membership record proving a user may open a document.
// Email is denormalized for display in the presence list.
type Collaborator struct {
	DocumentID string
	UserID     string
	Role       string
	Email      string
	Viewing    bool
	LastActive time.Time
}

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
)

type Invitation struct {
	ID         string
	Email      string
	DocumentID string
	Status     string
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// CommitInfo describes one revision in a document's git history.
type CommitInfo struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}
