package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"quillpad/api/internal/util"
)

// idChunkSize caps id-list filters at 10 ids per query, matching the
// document store's membership-query limit.
const idChunkSize = 10

var ErrInvitationNotPending = errors.New("invitation is not pending")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, LOWER($2), $3, NULLIF($4, ''))
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &hash)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = hash.String
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &hash)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = hash.String
	return user, nil
}

// EnsureUserByEmail returns the user holding the email, creating a
// passwordless account when none exists. Used by the email-link sign-in
// flow, where the verified email is the only identity material available.
func (s *PostgresStore) EnsureUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	user = User{
		ID:          util.NewID("usr"),
		Email:       strings.ToLower(email),
		DisplayName: displayNameFromEmail(email),
	}
	insert := `
		INSERT INTO users (id, email, display_name)
		VALUES ($1, LOWER($2), $3)
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id, email, display_name
	`
	if err := s.db.QueryRowContext(ctx, insert, user.ID, user.Email, user.DisplayName).Scan(&user.ID, &user.Email, &user.DisplayName); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) SetUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// CreateDocumentWithOwner inserts the document and its owner membership in
// one transaction, so a document can never exist without exactly one owner.
func (s *PostgresStore) CreateDocumentWithOwner(ctx context.Context, doc Document, ownerEmail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create document tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	name := doc.Name
	if name == "" {
		name = DefaultDocumentName
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, content, created_by)
		VALUES ($1, $2, $3, $4)
	`, doc.ID, name, doc.Content, doc.CreatedBy); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collaborators (document_id, user_id, role, email, last_active)
		VALUES ($1, $2, 'owner', LOWER($3), NOW())
	`, doc.ID, doc.CreatedBy, ownerEmail); err != nil {
		return fmt.Errorf("insert owner collaborator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create document tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, content, created_by, created_at, updated_at
		FROM documents
		WHERE id = $1
	`, documentID).Scan(&doc.ID, &doc.Name, &doc.Content, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET content = $2, updated_at = NOW() WHERE id = $1
	`, documentID, content)
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentName(ctx context.Context, documentID, name string) error {
	if strings.TrimSpace(name) == "" {
		name = DefaultDocumentName
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET name = $2, updated_at = NOW() WHERE id = $1
	`, documentID, name)
	if err != nil {
		return fmt.Errorf("update document name: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDocument removes the document; the collaborators rows cascade with
// it. Invitations referencing the document are left behind, matching the
// source system's non-cascading invitation collection.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListDocumentsByCreator(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content, created_by, created_at, updated_at
		FROM documents
		WHERE created_by = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents by creator: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListDocumentsByIDs resolves documents for an id list, issuing one query
// per chunk of at most idChunkSize ids.
func (s *PostgresStore) ListDocumentsByIDs(ctx context.Context, ids []string) ([]Document, error) {
	items := make([]Document, 0, len(ids))
	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, content, created_by, created_at, updated_at
			FROM documents
			WHERE id = ANY($1)
			ORDER BY updated_at DESC
		`, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("list documents by ids: %w", err)
		}
		chunk, err := scanDocuments(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		items = append(items, chunk...)
	}
	return items, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	items := make([]Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Content, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCollaborator(ctx context.Context, documentID, userID string) (Collaborator, error) {
	var member Collaborator
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, user_id, role, email, viewing, last_active
		FROM collaborators
		WHERE document_id = $1 AND user_id = $2
	`, documentID, userID).Scan(&member.DocumentID, &member.UserID, &member.Role, &member.Email, &member.Viewing, &member.LastActive)
	if err != nil {
		return Collaborator{}, err
	}
	return member, nil
}

// SetViewing upserts the collaborator's viewing flag, refreshing the
// denormalized email and last-active timestamp on every write.
func (s *PostgresStore) SetViewing(ctx context.Context, documentID, userID, email string, viewing bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collaborators (document_id, user_id, role, email, viewing, last_active)
		VALUES ($1, $2, 'editor', LOWER($3), $4, NOW())
		ON CONFLICT (document_id, user_id)
		DO UPDATE SET viewing = EXCLUDED.viewing, email = EXCLUDED.email, last_active = NOW()
	`, documentID, userID, email, viewing)
	if err != nil {
		return fmt.Errorf("set viewing: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCollaborators(ctx context.Context, documentID string) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, user_id, role, email, viewing, last_active
		FROM collaborators
		WHERE document_id = $1
		ORDER BY user_id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]Collaborator, 0)
	for rows.Next() {
		var member Collaborator
		if err := rows.Scan(&member.DocumentID, &member.UserID, &member.Role, &member.Email, &member.Viewing, &member.LastActive); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		items = append(items, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, invitation Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (id, email, document_id, status)
		VALUES ($1, LOWER($2), $3, $4)
	`, invitation.ID, invitation.Email, invitation.DocumentID, invitation.Status)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

// FirstPendingInvitationByEmail returns the oldest pending invitation for
// the email. Duplicate pending invitations are possible; the oldest wins.
func (s *PostgresStore) FirstPendingInvitationByEmail(ctx context.Context, email string) (Invitation, error) {
	return s.firstInvitationByEmail(ctx, email, InvitationPending)
}

// LatestAcceptedInvitationByEmail supports idempotent re-acceptance: when
// no pending invitation remains, an already-accepted one proves the email
// was granted access before.
func (s *PostgresStore) LatestAcceptedInvitationByEmail(ctx context.Context, email string) (Invitation, error) {
	return s.firstInvitationByEmail(ctx, email, InvitationAccepted)
}

func (s *PostgresStore) firstInvitationByEmail(ctx context.Context, email, status string) (Invitation, error) {
	order := "ASC"
	if status == InvitationAccepted {
		order = "DESC"
	}
	var invitation Invitation
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, email, document_id, status, created_at, accepted_at
		FROM invitations
		WHERE email = LOWER($1) AND status = $2
		ORDER BY created_at %s
		LIMIT 1
	`, order), email, status).Scan(&invitation.ID, &invitation.Email, &invitation.DocumentID, &invitation.Status, &invitation.CreatedAt, &invitation.AcceptedAt)
	if err != nil {
		return Invitation{}, err
	}
	return invitation, nil
}

func (s *PostgresStore) AcceptedInvitationDocumentIDs(ctx context.Context, email string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id FROM invitations
		WHERE email = LOWER($1) AND status = 'accepted'
		ORDER BY accepted_at DESC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list accepted invitation documents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan invitation document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitation document ids: %w", err)
	}
	return ids, nil
}

// AcceptInvitation grants membership and marks the invitation accepted in
// one transaction. It is idempotent: an existing membership is left alone
// and a non-pending invitation aborts the transaction without changes.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, invitationID, documentID, userID, email string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accept invitation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collaborators (document_id, user_id, role, email, last_active)
		VALUES ($1, $2, 'editor', LOWER($3), NOW())
		ON CONFLICT (document_id, user_id) DO NOTHING
	`, documentID, userID, email); err != nil {
		return fmt.Errorf("insert collaborator: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE invitations
		SET status = 'accepted', accepted_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, invitationID)
	if err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrInvitationNotPending
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accept invitation tx: %w", err)
	}
	return nil
}

// TouchCollaborator keeps the membership's activity timestamp warm;
// failures are not interesting to callers.
func (s *PostgresStore) TouchCollaborator(ctx context.Context, documentID, userID string) {
	_, _ = s.db.ExecContext(ctx, `
		UPDATE collaborators SET last_active = NOW()
		WHERE document_id = $1 AND user_id = $2
	`, documentID, userID)
}
