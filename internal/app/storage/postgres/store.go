// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage"
)

// Store implements the storage interfaces on a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ReviewerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app loanapp.Application) (loanapp.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	historyJSON, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return loanapp.Application{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loan_applications (id, owner_id, amount, purpose, term_months, status, approval_threshold, primary_reviewer, status_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, app.ID, app.OwnerID, app.Amount, app.Purpose, app.TermMonths, app.Status, app.ApprovalThreshold, app.PrimaryReviewer, historyJSON, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return loanapp.Application{}, err
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (loanapp.Application, error) {
	app, err := s.getApplicationRow(ctx, id)
	if err != nil {
		return loanapp.Application{}, err
	}
	if err := s.loadLedger(ctx, &app); err != nil {
		return loanapp.Application{}, err
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, ownerID string) ([]loanapp.Application, error) {
	return s.listApplications(ctx, `
		SELECT id, owner_id, amount, purpose, term_months, status, approval_threshold, primary_reviewer, assigned_at, status_history, created_at, updated_at
		FROM loan_applications
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at
	`, ownerID)
}

func (s *Store) ListApplicationsForReviewer(ctx context.Context, reviewerID string) ([]loanapp.Application, error) {
	return s.listApplications(ctx, `
		SELECT a.id, a.owner_id, a.amount, a.purpose, a.term_months, a.status, a.approval_threshold, a.primary_reviewer, a.assigned_at, a.status_history, a.created_at, a.updated_at
		FROM loan_applications a
		JOIN application_reviewers ar ON ar.application_id = a.id
		WHERE ar.reviewer_id = $1
		ORDER BY a.created_at
	`, reviewerID)
}

func (s *Store) ReplaceAssignment(ctx context.Context, id string, reviewerIDs []string, threshold int, change loanapp.StatusChange) (loanapp.Application, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return loanapp.Application{}, err
	}
	defer func() { _ = tx.Rollback() }()

	app, err := scanApplication(tx.QueryRowContext(ctx, `
		SELECT id, owner_id, amount, purpose, term_months, status, approval_threshold, primary_reviewer, assigned_at, status_history, created_at, updated_at
		FROM loan_applications
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
		}
		return loanapp.Application{}, err
	}

	now := time.Now().UTC()
	if app.Status != change.To {
		app.StatusHistory = append(app.StatusHistory, change)
	}
	app.Status = change.To
	app.ApprovalThreshold = threshold
	app.AssignedAt = now
	app.UpdatedAt = now

	historyJSON, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return loanapp.Application{}, err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $2, approval_threshold = $3, assigned_at = $4, status_history = $5, updated_at = $6
		WHERE id = $1
	`, id, app.Status, threshold, app.AssignedAt, historyJSON, app.UpdatedAt); err != nil {
		return loanapp.Application{}, err
	}

	// Dropping the membership rows cascades to the review ledger.
	if _, err = tx.ExecContext(ctx, `DELETE FROM application_reviewers WHERE application_id = $1`, id); err != nil {
		return loanapp.Application{}, err
	}
	for i, rid := range reviewerIDs {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO application_reviewers (application_id, reviewer_id, position)
			VALUES ($1, $2, $3)
		`, id, rid, i); err != nil {
			return loanapp.Application{}, err
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO application_reviews (application_id, reviewer_id, verdict, comments, documents_reviewed, created_at, updated_at)
			VALUES ($1, $2, $3, '', '[]', $4, $4)
		`, id, rid, loanapp.VerdictPending, now); err != nil {
			return loanapp.Application{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return loanapp.Application{}, err
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) UpsertReview(ctx context.Context, id string, rev loanapp.Review) (loanapp.Application, error) {
	docsJSON, err := json.Marshal(rev.DocumentsReviewed)
	if err != nil {
		return loanapp.Application{}, err
	}
	var riskJSON []byte
	if rev.Risk != nil {
		if riskJSON, err = json.Marshal(rev.Risk); err != nil {
			return loanapp.Application{}, err
		}
	}

	now := time.Now().UTC()

	// Membership check and upsert are one statement, so a review write racing
	// a reassignment cannot land for a reviewer outside the current set.
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO application_reviews (application_id, reviewer_id, verdict, comments, documents_reviewed, risk_assessment, reviewed_at, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $8
		WHERE EXISTS (
			SELECT 1 FROM application_reviewers
			WHERE application_id = $1 AND reviewer_id = $2
		)
		ON CONFLICT (application_id, reviewer_id) DO UPDATE
		SET verdict = EXCLUDED.verdict,
		    comments = EXCLUDED.comments,
		    documents_reviewed = EXCLUDED.documents_reviewed,
		    risk_assessment = EXCLUDED.risk_assessment,
		    reviewed_at = EXCLUDED.reviewed_at,
		    updated_at = EXCLUDED.updated_at
	`, id, rev.ReviewerID, rev.Verdict, rev.Comments, docsJSON, riskJSON, toNullTime(rev.ReviewedAt), now)
	if err != nil {
		return loanapp.Application{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.getApplicationRow(ctx, id); err != nil {
			return loanapp.Application{}, err
		}
		return loanapp.Application{}, fmt.Errorf("reviewer %s on application %s: %w", rev.ReviewerID, id, storage.ErrReviewerNotAssigned)
	}

	if _, err = s.db.ExecContext(ctx, `
		UPDATE loan_applications SET updated_at = $2 WHERE id = $1
	`, id, now); err != nil {
		return loanapp.Application{}, err
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) SetPrimaryReviewer(ctx context.Context, id, reviewerID string) (loanapp.Application, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET primary_reviewer = $2, updated_at = $3
		WHERE id = $1 AND EXISTS (
			SELECT 1 FROM application_reviewers
			WHERE application_id = $1 AND reviewer_id = $2
		)
	`, id, reviewerID, time.Now().UTC())
	if err != nil {
		return loanapp.Application{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.getApplicationRow(ctx, id); err != nil {
			return loanapp.Application{}, err
		}
		return loanapp.Application{}, fmt.Errorf("reviewer %s on application %s: %w", reviewerID, id, storage.ErrReviewerNotAssigned)
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, change loanapp.StatusChange) (loanapp.Application, error) {
	app, err := s.getApplicationRow(ctx, id)
	if err != nil {
		return loanapp.Application{}, err
	}

	app.StatusHistory = append(app.StatusHistory, change)
	historyJSON, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return loanapp.Application{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $2, status_history = $3, updated_at = $4
		WHERE id = $1
	`, id, change.To, historyJSON, time.Now().UTC())
	if err != nil {
		return loanapp.Application{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) CountActiveAssignments(ctx context.Context, reviewerID, excludeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM application_reviewers ar
		JOIN loan_applications a ON a.id = ar.application_id
		WHERE ar.reviewer_id = $1
		  AND a.id <> $2
		  AND a.status IN ('pending', 'under_review')
	`, reviewerID, excludeID).Scan(&count)
	return count, err
}

// --- ReviewerStore ----------------------------------------------------------

func (s *Store) CreateReviewer(ctx context.Context, rev reviewer.Reviewer) (reviewer.Reviewer, error) {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rev.CreatedAt = now
	rev.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviewers (id, name, email, specialization, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rev.ID, rev.Name, rev.Email, rev.Specialization, rev.Active, rev.CreatedAt, rev.UpdatedAt)
	if err != nil {
		return reviewer.Reviewer{}, err
	}
	return rev, nil
}

func (s *Store) UpdateReviewer(ctx context.Context, rev reviewer.Reviewer) (reviewer.Reviewer, error) {
	existing, err := s.GetReviewer(ctx, rev.ID)
	if err != nil {
		return reviewer.Reviewer{}, err
	}

	rev.CreatedAt = existing.CreatedAt
	rev.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reviewers
		SET name = $2, email = $3, specialization = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, rev.ID, rev.Name, rev.Email, rev.Specialization, rev.Active, rev.UpdatedAt)
	if err != nil {
		return reviewer.Reviewer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reviewer.Reviewer{}, fmt.Errorf("reviewer %s: %w", rev.ID, storage.ErrNotFound)
	}
	return rev, nil
}

func (s *Store) GetReviewer(ctx context.Context, id string) (reviewer.Reviewer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, specialization, active, created_at, updated_at
		FROM reviewers
		WHERE id = $1
	`, id)

	var rev reviewer.Reviewer
	if err := row.Scan(&rev.ID, &rev.Name, &rev.Email, &rev.Specialization, &rev.Active, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reviewer.Reviewer{}, fmt.Errorf("reviewer %s: %w", id, storage.ErrNotFound)
		}
		return reviewer.Reviewer{}, err
	}
	return rev, nil
}

func (s *Store) ListReviewers(ctx context.Context, activeOnly bool) ([]reviewer.Reviewer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, specialization, active, created_at, updated_at
		FROM reviewers
		WHERE $1 = false OR active = true
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reviewer.Reviewer
	for rows.Next() {
		var rev reviewer.Reviewer
		if err := rows.Scan(&rev.ID, &rev.Name, &rev.Email, &rev.Specialization, &rev.Active, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, rev)
	}
	return result, rows.Err()
}

// --- row helpers ------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (loanapp.Application, error) {
	var (
		app        loanapp.Application
		assignedAt sql.NullTime
		historyRaw []byte
	)
	if err := row.Scan(&app.ID, &app.OwnerID, &app.Amount, &app.Purpose, &app.TermMonths, &app.Status, &app.ApprovalThreshold, &app.PrimaryReviewer, &assignedAt, &historyRaw, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return loanapp.Application{}, err
	}
	if assignedAt.Valid {
		app.AssignedAt = assignedAt.Time.UTC()
	}
	if len(historyRaw) > 0 {
		_ = json.Unmarshal(historyRaw, &app.StatusHistory)
	}
	return app, nil
}

func (s *Store) getApplicationRow(ctx context.Context, id string) (loanapp.Application, error) {
	app, err := scanApplication(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, amount, purpose, term_months, status, approval_threshold, primary_reviewer, assigned_at, status_history, created_at, updated_at
		FROM loan_applications
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
		}
		return loanapp.Application{}, err
	}
	return app, nil
}

func (s *Store) listApplications(ctx context.Context, query string, arg string) ([]loanapp.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]loanapp.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if err := s.loadLedger(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// loadLedger fills the assigned set and the review ledger in assignment
// order.
func (s *Store) loadLedger(ctx context.Context, app *loanapp.Application) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ar.reviewer_id, r.verdict, r.comments, r.documents_reviewed, r.risk_assessment, r.reviewed_at, r.created_at, r.updated_at
		FROM application_reviewers ar
		LEFT JOIN application_reviews r
		  ON r.application_id = ar.application_id AND r.reviewer_id = ar.reviewer_id
		WHERE ar.application_id = $1
		ORDER BY ar.position
	`, app.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	app.AssignedReviewers = nil
	app.Reviews = nil
	for rows.Next() {
		var (
			rev        loanapp.Review
			verdict    sql.NullString
			comments   sql.NullString
			docsRaw    []byte
			riskRaw    []byte
			reviewedAt sql.NullTime
			createdAt  sql.NullTime
			updatedAt  sql.NullTime
		)
		if err := rows.Scan(&rev.ReviewerID, &verdict, &comments, &docsRaw, &riskRaw, &reviewedAt, &createdAt, &updatedAt); err != nil {
			return err
		}
		app.AssignedReviewers = append(app.AssignedReviewers, rev.ReviewerID)

		rev.Verdict = loanapp.VerdictPending
		if verdict.Valid {
			rev.Verdict = loanapp.Verdict(verdict.String)
		}
		rev.Comments = comments.String
		if len(docsRaw) > 0 {
			_ = json.Unmarshal(docsRaw, &rev.DocumentsReviewed)
		}
		if len(riskRaw) > 0 {
			risk := loanapp.RiskAssessment{}
			if err := json.Unmarshal(riskRaw, &risk); err == nil {
				rev.Risk = &risk
			}
		}
		if reviewedAt.Valid {
			rev.ReviewedAt = reviewedAt.Time.UTC()
		}
		if createdAt.Valid {
			rev.CreatedAt = createdAt.Time.UTC()
		}
		if updatedAt.Valid {
			rev.UpdatedAt = updatedAt.Time.UTC()
		}
		app.Reviews = append(app.Reviews, rev)
	}
	return rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
