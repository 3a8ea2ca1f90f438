package invite

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quillpad/api/internal/session"
	"quillpad/api/internal/store"
)

type fakeStore struct {
	documents     map[string]store.Document
	collaborators map[string]store.Collaborator // key documentID+"/"+userID
	users         map[string]store.User         // key email
	invitations   []store.Invitation
	acceptCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents:     map[string]store.Document{},
		collaborators: map[string]store.Collaborator{},
		users:         map[string]store.User{},
	}
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	doc, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return doc, nil
}

func (f *fakeStore) GetCollaborator(_ context.Context, documentID, userID string) (store.Collaborator, error) {
	c, ok := f.collaborators[documentID+"/"+userID]
	if !ok {
		return store.Collaborator{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) EnsureUserByEmail(_ context.Context, email string) (store.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	u := store.User{ID: "usr_" + email, Email: email}
	f.users[email] = u
	return u, nil
}

func (f *fakeStore) CreateInvitation(_ context.Context, invitation store.Invitation) error {
	invitation.CreatedAt = time.Now().Add(time.Duration(len(f.invitations)) * time.Second)
	f.invitations = append(f.invitations, invitation)
	return nil
}

func (f *fakeStore) FirstPendingInvitationByEmail(_ context.Context, email string) (store.Invitation, error) {
	for _, inv := range f.invitations {
		if inv.Email == email && inv.Status == store.InvitationPending {
			return inv, nil
		}
	}
	return store.Invitation{}, sql.ErrNoRows
}

func (f *fakeStore) LatestAcceptedInvitationByEmail(_ context.Context, email string) (store.Invitation, error) {
	for i := len(f.invitations) - 1; i >= 0; i-- {
		if f.invitations[i].Email == email && f.invitations[i].Status == store.InvitationAccepted {
			return f.invitations[i], nil
		}
	}
	return store.Invitation{}, sql.ErrNoRows
}

func (f *fakeStore) AcceptInvitation(_ context.Context, invitationID, documentID, userID, email string) error {
	f.acceptCalls++
	for i, inv := range f.invitations {
		if inv.ID != invitationID {
			continue
		}
		if inv.Status != store.InvitationPending {
			return store.ErrInvitationNotPending
		}
		f.invitations[i].Status = store.InvitationAccepted
		f.collaborators[documentID+"/"+userID] = store.Collaborator{
			DocumentID: documentID,
			UserID:     userID,
			Role:       "editor",
			Email:      email,
		}
		return nil
	}
	return sql.ErrNoRows
}

type fakeMailer struct {
	to        string
	docName   string
	inviteURL string
	signInURL string
	err       error
}

func (m *fakeMailer) SendInviteEmail(to, documentName, inviteURL string) error {
	if m.err != nil {
		return m.err
	}
	m.to, m.docName, m.inviteURL = to, documentName, inviteURL
	return nil
}

func (m *fakeMailer) SendSignInEmail(to, signInURL string) error {
	if m.err != nil {
		return m.err
	}
	m.to, m.signInURL = to, signInURL
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeMailer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	challenges := session.NewRedisStoreWithClient(client)

	st := newFakeStore()
	st.documents["doc_1"] = store.Document{ID: "doc_1", Name: "Roadmap", CreatedBy: "usr_owner"}
	st.collaborators["doc_1/usr_owner"] = store.Collaborator{
		DocumentID: "doc_1", UserID: "usr_owner", Role: "owner", Email: "owner@example.com",
	}

	mailer := &fakeMailer{}
	svc := NewService(st, challenges, mailer, "https://quillpad.example.com/", 24*time.Hour)
	return svc, st, mailer
}

func challengeFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse invite link: %v", err)
	}
	token := u.Query().Get("challenge")
	if token == "" {
		t.Fatalf("invite link carries no challenge: %s", link)
	}
	return token
}

func TestInviteSendsChallengeLink(t *testing.T) {
	svc, st, mailer := newTestService(t)

	inv, err := svc.Invite(context.Background(), "usr_owner", "doc_1", "Friend@Example.com")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if inv.Email != "friend@example.com" {
		t.Fatalf("email not normalized: %q", inv.Email)
	}
	if inv.Status != store.InvitationPending {
		t.Fatalf("expected pending invitation, got %q", inv.Status)
	}
	if len(st.invitations) != 1 {
		t.Fatalf("expected one stored invitation, got %d", len(st.invitations))
	}
	if mailer.to != "friend@example.com" || mailer.docName != "Roadmap" {
		t.Fatalf("unexpected mail: to=%q doc=%q", mailer.to, mailer.docName)
	}
	if !strings.HasPrefix(mailer.inviteURL, "https://quillpad.example.com/auth?challenge=") {
		t.Fatalf("unexpected invite link: %s", mailer.inviteURL)
	}
}

func TestInviteRejectsNonOwner(t *testing.T) {
	svc, st, _ := newTestService(t)
	st.collaborators["doc_1/usr_editor"] = store.Collaborator{
		DocumentID: "doc_1", UserID: "usr_editor", Role: "editor", Email: "e@example.com",
	}

	if _, err := svc.Invite(context.Background(), "usr_editor", "doc_1", "x@example.com"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for editor, got %v", err)
	}
	if _, err := svc.Invite(context.Background(), "usr_stranger", "doc_1", "x@example.com"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for stranger, got %v", err)
	}
}

func TestAcceptGrantsMembership(t *testing.T) {
	svc, st, mailer := newTestService(t)

	if _, err := svc.Invite(context.Background(), "usr_owner", "doc_1", "friend@example.com"); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	token := challengeFromLink(t, mailer.inviteURL)

	res, err := svc.Accept(context.Background(), token, "friend@example.com")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if res.DocumentID != "doc_1" || res.RedirectTo != "/document/doc_1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.invitations[0].Status != store.InvitationAccepted {
		t.Fatal("invitation not flipped to accepted")
	}
	if _, ok := st.collaborators["doc_1/"+res.User.ID]; !ok {
		t.Fatal("membership not granted")
	}
}

func TestAcceptRejectsWrongEmail(t *testing.T) {
	svc, _, mailer := newTestService(t)

	if _, err := svc.Invite(context.Background(), "usr_owner", "doc_1", "friend@example.com"); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	token := challengeFromLink(t, mailer.inviteURL)

	if _, err := svc.Accept(context.Background(), token, "other@example.com"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
}

func TestAcceptTokenIsSingleUse(t *testing.T) {
	svc, _, mailer := newTestService(t)

	if _, err := svc.Invite(context.Background(), "usr_owner", "doc_1", "friend@example.com"); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	token := challengeFromLink(t, mailer.inviteURL)

	if _, err := svc.Accept(context.Background(), token, "friend@example.com"); err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	if _, err := svc.Accept(context.Background(), token, "friend@example.com"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected consumed token to be rejected, got %v", err)
	}
}

func TestAcceptIsIdempotentAcrossLinks(t *testing.T) {
	svc, st, mailer := newTestService(t)

	// Two invitations for the same address, two separate links.
	if _, err := svc.Invite(context.Background(), "usr_owner", "doc_1", "friend@example.com"); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	first := challengeFromLink(t, mailer.inviteURL)
	if _, err := svc.Invite(context.Background(), "usr_owner", "doc_1", "friend@example.com"); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	second := challengeFromLink(t, mailer.inviteURL)

	if _, err := svc.Accept(context.Background(), first, "friend@example.com"); err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	res, err := svc.Accept(context.Background(), second, "friend@example.com")
	if err != nil {
		t.Fatalf("second Accept: %v", err)
	}
	if res.DocumentID != "doc_1" {
		t.Fatalf("unexpected document: %s", res.DocumentID)
	}
	// The second invitation was still pending, so it is consumed too.
	if st.invitations[1].Status != store.InvitationAccepted {
		t.Fatal("second pending invitation not consumed")
	}
}

func TestAcceptRejectsUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Accept(context.Background(), "not-a-real-token", "nobody@example.com"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid for unknown token, got %v", err)
	}
}

func TestSignInLinkWithoutInvitation(t *testing.T) {
	svc, st, mailer := newTestService(t)

	if err := svc.RequestSignIn(context.Background(), "Solo@Example.com"); err != nil {
		t.Fatalf("RequestSignIn: %v", err)
	}
	if mailer.to != "solo@example.com" {
		t.Fatalf("unexpected recipient: %q", mailer.to)
	}
	token := challengeFromLink(t, mailer.signInURL)

	res, err := svc.Accept(context.Background(), token, "solo@example.com")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if res.RedirectTo != "/" {
		t.Fatalf("sign-in without invitation must land on the home page, got %q", res.RedirectTo)
	}
	if res.User.Email != "solo@example.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if _, ok := st.users["solo@example.com"]; !ok {
		t.Fatal("expected the account to be provisioned")
	}
}
