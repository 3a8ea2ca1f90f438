// Package invite runs the collaboration invitation workflow: owners
// invite by email, invitees prove control of the address through a
// single-use sign-in link, and acceptance grants document membership.
package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quillpad/api/internal/auth"
	"quillpad/api/internal/rbac"
	"quillpad/api/internal/store"
	"quillpad/api/internal/util"
)

var (
	ErrNotOwner         = errors.New("only the document owner can invite")
	ErrChallengeInvalid = errors.New("challenge is invalid or expired")
)

// Store is the relational side of the workflow.
type Store interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	GetCollaborator(ctx context.Context, documentID, userID string) (store.Collaborator, error)
	EnsureUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateInvitation(ctx context.Context, invitation store.Invitation) error
	FirstPendingInvitationByEmail(ctx context.Context, email string) (store.Invitation, error)
	LatestAcceptedInvitationByEmail(ctx context.Context, email string) (store.Invitation, error)
	AcceptInvitation(ctx context.Context, invitationID, documentID, userID, email string) error
}

// ChallengeStore keeps single-use email challenges.
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, tokenHash, email string, ttl time.Duration) error
	ConsumeChallenge(ctx context.Context, tokenHash string) (string, error)
}

// Mailer delivers challenge links.
type Mailer interface {
	SendInviteEmail(to, documentName, inviteURL string) error
	SendSignInEmail(to, signInURL string) error
}

type Service struct {
	store      Store
	challenges ChallengeStore
	mailer     Mailer

	baseURL      string
	challengeTTL time.Duration
}

func NewService(st Store, challenges ChallengeStore, mailer Mailer, baseURL string, challengeTTL time.Duration) *Service {
	return &Service{
		store:        st,
		challenges:   challenges,
		mailer:       mailer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		challengeTTL: challengeTTL,
	}
}

// Invite records a pending invitation and emails a challenge link to the
// invitee. Only the document owner may invite. Repeat invitations for the
// same address are allowed; acceptance consumes the oldest pending one.
func (s *Service) Invite(ctx context.Context, ownerID, documentID, inviteeEmail string) (store.Invitation, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Invitation{}, err
	}
	collab, err := s.store.GetCollaborator(ctx, documentID, ownerID)
	if err != nil || !rbac.Can(collab.Role, rbac.ActionInvite) {
		return store.Invitation{}, ErrNotOwner
	}

	invitation := store.Invitation{
		ID:         util.NewID("inv"),
		Email:      strings.ToLower(strings.TrimSpace(inviteeEmail)),
		DocumentID: documentID,
		Status:     store.InvitationPending,
	}
	if err := s.store.CreateInvitation(ctx, invitation); err != nil {
		return store.Invitation{}, err
	}

	token := util.NewToken()
	if err := s.challenges.SaveChallenge(ctx, auth.HashToken(token), invitation.Email, s.challengeTTL); err != nil {
		return store.Invitation{}, fmt.Errorf("save challenge: %w", err)
	}

	link := s.challengeLink(token, invitation.Email)
	if err := s.mailer.SendInviteEmail(invitation.Email, doc.Name, link); err != nil {
		return store.Invitation{}, fmt.Errorf("send invite email: %w", err)
	}
	return invitation, nil
}

// RequestSignIn emails a passwordless sign-in link. It never reveals
// whether an account exists.
func (s *Service) RequestSignIn(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("email is required")
	}

	token := util.NewToken()
	if err := s.challenges.SaveChallenge(ctx, auth.HashToken(token), email, s.challengeTTL); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	if err := s.mailer.SendSignInEmail(email, s.challengeLink(token, email)); err != nil {
		return fmt.Errorf("send sign-in email: %w", err)
	}
	return nil
}

func (s *Service) challengeLink(token, email string) string {
	return fmt.Sprintf("%s/auth?challenge=%s&email=%s", s.baseURL, token, email)
}

// AcceptResult is the outcome of a completed challenge.
type AcceptResult struct {
	User       store.User
	DocumentID string
	RedirectTo string
}

// Accept consumes a challenge token, verifies the presented email matches
// the one the challenge was issued for, and flips the oldest pending
// invitation to accepted while granting membership. Re-running a link
// whose invitation was already accepted succeeds without changing
// anything, as long as the membership exists.
func (s *Service) Accept(ctx context.Context, token, email string) (AcceptResult, error) {
	issuedFor, err := s.challenges.ConsumeChallenge(ctx, auth.HashToken(token))
	if err != nil {
		return AcceptResult{}, ErrChallengeInvalid
	}
	if !strings.EqualFold(issuedFor, email) {
		return AcceptResult{}, ErrChallengeInvalid
	}
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.EnsureUserByEmail(ctx, email)
	if err != nil {
		return AcceptResult{}, err
	}

	invitation, err := s.store.FirstPendingInvitationByEmail(ctx, email)
	if err != nil {
		// No pending invitation. An already-consumed invite link lands
		// here too; when the latest invitation was accepted and the
		// membership exists, send the user back to that document.
		// Otherwise this was a plain sign-in link.
		accepted, acceptedErr := s.store.LatestAcceptedInvitationByEmail(ctx, email)
		if acceptedErr == nil {
			if _, collabErr := s.store.GetCollaborator(ctx, accepted.DocumentID, user.ID); collabErr == nil {
				return AcceptResult{
					User:       user,
					DocumentID: accepted.DocumentID,
					RedirectTo: "/document/" + accepted.DocumentID,
				}, nil
			}
		}
		return AcceptResult{User: user, RedirectTo: "/"}, nil
	}

	if err := s.store.AcceptInvitation(ctx, invitation.ID, invitation.DocumentID, user.ID, email); err != nil {
		return AcceptResult{}, err
	}
	return AcceptResult{
		User:       user,
		DocumentID: invitation.DocumentID,
		RedirectTo: "/document/" + invitation.DocumentID,
	}, nil
}
