// Package app wires the document, session and collaboration services
// behind the HTTP and WebSocket surfaces.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/idtoken"

	"quillpad/api/internal/auth"
	"quillpad/api/internal/authpw"
	"quillpad/api/internal/blob"
	"quillpad/api/internal/config"
	"quillpad/api/internal/export"
	"quillpad/api/internal/gitrepo"
	"quillpad/api/internal/invite"
	"quillpad/api/internal/presence"
	"quillpad/api/internal/rbac"
	"quillpad/api/internal/realtime"
	"quillpad/api/internal/sanitize"
	"quillpad/api/internal/search"
	"quillpad/api/internal/store"
	"quillpad/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	EnsureUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateDocumentWithOwner(ctx context.Context, doc store.Document, ownerEmail string) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	UpdateDocumentContent(ctx context.Context, documentID, content string) error
	UpdateDocumentName(ctx context.Context, documentID, name string) error
	DeleteDocument(ctx context.Context, documentID string) error
	ListDocumentsByCreator(ctx context.Context, userID string) ([]store.Document, error)
	ListDocumentsByIDs(ctx context.Context, ids []string) ([]store.Document, error)
	AcceptedInvitationDocumentIDs(ctx context.Context, email string) ([]string, error)
	GetCollaborator(ctx context.Context, documentID, userID string) (store.Collaborator, error)
	SetViewing(ctx context.Context, documentID, userID, email string, viewing bool) error
	ListCollaborators(ctx context.Context, documentID string) ([]store.Collaborator, error)
	TouchCollaborator(ctx context.Context, documentID, userID string)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type gitService interface {
	EnsureDocumentRepo(documentID string, initial gitrepo.Content, author string) error
	CommitContent(documentID string, content gitrepo.Content, author, message string) (store.CommitInfo, error)
	History(documentID string, limit int) ([]store.CommitInfo, error)
	GetContentByHash(documentID, hash string) (gitrepo.Content, error)
	DeleteDocumentRepo(documentID string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
}

type inviteService interface {
	Invite(ctx context.Context, ownerID, documentID, inviteeEmail string) (store.Invitation, error)
	Accept(ctx context.Context, token, email string) (invite.AcceptResult, error)
	RequestSignIn(ctx context.Context, email string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	hub      *realtime.Hub
	git      gitService
	search   searchService
	invites  inviteService
	pw       *authpw.Service
	exporter *export.Service
	blobs    *blob.Store

	// overridable in tests
	validateGoogleToken func(ctx context.Context, token, audience string) (string, error)
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, hub *realtime.Hub, git *gitrepo.Service, searchSvc *search.Service, invites *invite.Service, pw *authpw.Service, blobs *blob.Store) *Service {
	s := &Service{
		cfg:                 cfg,
		store:               dataStore,
		sessions:            sessions,
		hub:                 hub,
		git:                 git,
		search:              searchSvc,
		invites:             invites,
		pw:                  pw,
		blobs:               blobs,
		validateGoogleToken: validateGoogleIDToken,
	}
	s.exporter = export.NewService(s)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- sessions ---

func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    time.Now().Add(s.cfg.AccessTTL),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// --- sign-in flows ---

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.pw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.pw.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user)
}

// GoogleSignIn verifies a Google ID token and signs the holder in,
// provisioning an account for the verified email if needed.
func (s *Service) GoogleSignIn(ctx context.Context, idToken string) (Session, error) {
	if s.cfg.GoogleClientID == "" {
		return Session{}, domainError(http.StatusServiceUnavailable, "GOOGLE_DISABLED", "Google sign-in is not configured", nil)
	}
	email, err := s.validateGoogleToken(ctx, idToken, s.cfg.GoogleClientID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_GOOGLE_TOKEN", "Google token rejected", nil)
	}
	user, err := s.store.EnsureUserByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user)
}

func validateGoogleIDToken(ctx context.Context, token, audience string) (string, error) {
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return "", err
	}
	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if email == "" || !verified {
		return "", errors.New("google token lacks verified email")
	}
	return email, nil
}

// RequestEmailLink emails a single-use sign-in link.
func (s *Service) RequestEmailLink(ctx context.Context, email string) error {
	return s.invites.RequestSignIn(ctx, email)
}

// CompleteEmailLink consumes a challenge token, accepting any pending
// invitation along the way, and returns a session plus the path the
// client should navigate to.
func (s *Service) CompleteEmailLink(ctx context.Context, token, email string) (Session, string, error) {
	res, err := s.invites.Accept(ctx, token, email)
	if err != nil {
		return Session{}, "", err
	}
	session, err := s.CreateSession(ctx, res.User)
	if err != nil {
		return Session{}, "", err
	}
	if res.DocumentID != "" {
		s.publishCollaborators(ctx, res.DocumentID)
	}
	return session, res.RedirectTo, nil
}

// --- documents ---

func (s *Service) CreateDocument(ctx context.Context, session Session, name string) (store.Document, error) {
	doc := store.Document{
		ID:        util.NewID("doc"),
		Name:      strings.TrimSpace(name),
		Content:   "",
		CreatedBy: session.UserID,
	}
	if doc.Name == "" {
		doc.Name = store.DefaultDocumentName
	}
	if err := s.store.CreateDocumentWithOwner(ctx, doc, session.Email); err != nil {
		return store.Document{}, err
	}

	if err := s.git.EnsureDocumentRepo(doc.ID, gitrepo.Content{Name: doc.Name}, session.DisplayName); err != nil {
		log.Printf("app: init history repo for %s: %v", doc.ID, err)
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:              doc.ID,
		Name:            doc.Name,
		CollaboratorIDs: []string{session.UserID},
	})
	return s.store.GetDocument(ctx, doc.ID)
}

// ListDocuments returns the user's home page set: documents they created
// plus documents whose invitations they accepted, newest update first.
func (s *Service) ListDocuments(ctx context.Context, session Session) ([]store.Document, error) {
	owned, err := s.store.ListDocumentsByCreator(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	invitedIDs, err := s.store.AcceptedInvitationDocumentIDs(ctx, session.Email)
	if err != nil {
		return nil, err
	}
	invited, err := s.store.ListDocumentsByIDs(ctx, invitedIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(owned))
	documents := make([]store.Document, 0, len(owned)+len(invited))
	for _, doc := range owned {
		seen[doc.ID] = true
		documents = append(documents, doc)
	}
	for _, doc := range invited {
		if !seen[doc.ID] {
			documents = append(documents, doc)
		}
	}
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].UpdatedAt.After(documents[j].UpdatedAt)
	})
	return documents, nil
}

// OpenDocument is the access gate: it returns the document only when the
// user holds a membership, checked once on entry.
func (s *Service) OpenDocument(ctx context.Context, session Session, documentID string) (store.Document, store.Collaborator, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, store.Collaborator{}, err
	}
	collab, err := s.store.GetCollaborator(ctx, documentID, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, store.Collaborator{}, domainError(http.StatusForbidden, "NOT_A_COLLABORATOR", "You do not have access to this document", nil)
		}
		return store.Document{}, store.Collaborator{}, err
	}
	s.store.TouchCollaborator(ctx, documentID, session.UserID)
	return doc, collab, nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	_, collab, err := s.OpenDocument(ctx, session, documentID)
	if err != nil {
		return err
	}
	if !rbac.Can(collab.Role, rbac.ActionDelete) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can delete a document", nil)
	}

	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	if err := s.hub.Publish(ctx, realtime.DocumentChannel(documentID), realtime.DocumentEvent{Type: realtime.EventDeleted}); err != nil {
		log.Printf("app: publish delete for %s: %v", documentID, err)
	}
	if err := s.git.DeleteDocumentRepo(documentID); err != nil {
		log.Printf("app: remove history repo for %s: %v", documentID, err)
	}
	s.search.DeleteDocument(documentID)
	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, documentID); err != nil {
			log.Printf("app: remove uploads for %s: %v", documentID, err)
		}
	}
	return nil
}

func (s *Service) InviteCollaborator(ctx context.Context, session Session, documentID, email string) (store.Invitation, error) {
	return s.invites.Invite(ctx, session.UserID, documentID, email)
}

// ActiveCollaborators returns the viewing members with display colors.
func (s *Service) ActiveCollaborators(ctx context.Context, session Session, documentID string) ([]presence.Collaborator, error) {
	if _, _, err := s.OpenDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	members, err := s.store.ListCollaborators(ctx, documentID)
	if err != nil {
		return nil, err
	}
	active := make([]presence.Collaborator, 0, len(members))
	for i, m := range members {
		if !m.Viewing {
			continue
		}
		active = append(active, presence.Collaborator{
			UserID: m.UserID,
			Email:  m.Email,
			Color:  presence.ColorFor(i),
		})
	}
	return active, nil
}

// --- durable writes ---

// SaveDocumentContent sanitizes and persists a debounced content write,
// then fans out: history commit, live broadcast, search index.
func (s *Service) SaveDocumentContent(ctx context.Context, documentID, actor, content string) error {
	clean := sanitize.HTML(content)
	if err := s.store.UpdateDocumentContent(ctx, documentID, clean); err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if _, err := s.git.CommitContent(documentID, gitrepo.Content{Name: doc.Name, HTML: clean}, actor, "Edit content"); err != nil {
		log.Printf("app: commit content for %s: %v", documentID, err)
	}
	s.broadcastDocument(ctx, doc)
	s.indexDocument(ctx, doc)
	return nil
}

// SaveDocumentName persists a debounced rename. An empty name falls back
// to the default title.
func (s *Service) SaveDocumentName(ctx context.Context, documentID, actor, name string) error {
	if err := s.store.UpdateDocumentName(ctx, documentID, strings.TrimSpace(name)); err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if _, err := s.git.CommitContent(documentID, gitrepo.Content{Name: doc.Name, HTML: doc.Content}, actor, "Rename document"); err != nil {
		log.Printf("app: commit rename for %s: %v", documentID, err)
	}
	s.broadcastDocument(ctx, doc)
	s.indexDocument(ctx, doc)
	return nil
}

func (s *Service) broadcastDocument(ctx context.Context, doc store.Document) {
	ev := realtime.DocumentEvent{
		Type:    realtime.EventUpdated,
		Name:    doc.Name,
		Content: doc.Content,
	}
	if err := s.hub.Publish(ctx, realtime.DocumentChannel(doc.ID), ev); err != nil {
		log.Printf("app: publish update for %s: %v", doc.ID, err)
	}
}

func (s *Service) indexDocument(ctx context.Context, doc store.Document) {
	members, err := s.store.ListCollaborators(ctx, doc.ID)
	if err != nil {
		log.Printf("app: list collaborators for index %s: %v", doc.ID, err)
		return
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:              doc.ID,
		Name:            doc.Name,
		Text:            doc.Content,
		CollaboratorIDs: ids,
	})
}

// publishCollaborators broadcasts the full collaborator set of a
// document, mirroring a collection snapshot.
func (s *Service) publishCollaborators(ctx context.Context, documentID string) {
	members, err := s.store.ListCollaborators(ctx, documentID)
	if err != nil {
		log.Printf("app: list collaborators for %s: %v", documentID, err)
		return
	}
	ev := realtime.CollaboratorsEvent{Members: make([]realtime.CollaboratorState, 0, len(members))}
	for _, m := range members {
		ev.Members = append(ev.Members, realtime.CollaboratorState{
			UserID:  m.UserID,
			Email:   m.Email,
			Viewing: m.Viewing,
		})
	}
	if err := s.hub.Publish(ctx, realtime.CollaboratorsChannel(documentID), ev); err != nil {
		log.Printf("app: publish collaborators for %s: %v", documentID, err)
	}
}

// --- history, export, search, uploads ---

func (s *Service) History(ctx context.Context, session Session, documentID string, limit int) ([]store.CommitInfo, error) {
	if _, _, err := s.OpenDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	return s.git.History(documentID, limit)
}

func (s *Service) HistoryContent(ctx context.Context, session Session, documentID, hash string) (gitrepo.Content, error) {
	if _, _, err := s.OpenDocument(ctx, session, documentID); err != nil {
		return gitrepo.Content{}, err
	}
	return s.git.GetContentByHash(documentID, hash)
}

// GetExportDocument loads the snapshot the export service renders.
func (s *Service) GetExportDocument(ctx context.Context, documentID, version string) (export.DocumentInfo, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return export.DocumentInfo{}, err
	}
	info := export.DocumentInfo{
		ID:        doc.ID,
		Name:      doc.Name,
		HTML:      doc.Content,
		UpdatedAt: doc.UpdatedAt,
	}
	if owner, err := s.store.GetUserByID(ctx, doc.CreatedBy); err == nil {
		info.Author = owner.DisplayName
	}
	if version != "" && version != "latest" {
		content, err := s.git.GetContentByHash(documentID, version)
		if err != nil {
			return export.DocumentInfo{}, err
		}
		info.Name = content.Name
		info.HTML = content.HTML
	}
	return info, nil
}

func (s *Service) ExportPDF(ctx context.Context, session Session, documentID, version string) (*export.Result, error) {
	if _, _, err := s.OpenDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{DocumentID: documentID, Version: version})
}

func (s *Service) Search(ctx context.Context, session Session, text string, limit, offset int) search.Response {
	return s.search.Search(search.Query{
		Text:   text,
		UserID: session.UserID,
		Limit:  limit,
		Offset: offset,
	})
}

// Upload stores an editor image and returns its URL.
func (s *Service) Upload(ctx context.Context, session Session, documentID, contentType string, size int64, r io.Reader) (string, error) {
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_DISABLED", "Object storage is not configured", nil)
	}
	if _, _, err := s.OpenDocument(ctx, session, documentID); err != nil {
		return "", err
	}
	url, err := s.blobs.Upload(ctx, documentID, contentType, size, r)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return url, nil
}
