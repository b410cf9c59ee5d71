package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is a tracker.Tracker backed by Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) Projects() tracker.ProjectService   { return projectRepo{p.pool} }
func (p *PostgresStore) WorkItems() tracker.WorkItemService { return workItemRepo{p.pool} }

type projectRepo struct{ pool *pgxpool.Pool }

const projectColumns = `id::text, title, description, source_label, created_at, updated_at`

func scanProject(row pgx.Row) (tracker.Project, error) {
	var (
		pr    tracker.Project
		id    string
		label string
	)
	if err := row.Scan(&id, &pr.Title, &pr.Description, &label, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
		return tracker.Project{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return tracker.Project{}, err
	}
	pr.ID = parsed
	pr.SourceLabel = tracker.SourceLabel(label)
	return pr, nil
}

func (r projectRepo) GetByName(ctx context.Context, name string) (tracker.Project, error) {
	pr, err := scanProject(r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE lower(title) = lower($1)`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Project{}, fmt.Errorf("project %q: %w", name, tracker.ErrNotFound)
	}
	return pr, err
}

// Create inserts a project. A concurrent insert of the same title loses the
// unique-index race and returns the winner's row instead of failing.
func (r projectRepo) Create(ctx context.Context, req tracker.CreateProjectRequest) (tracker.Project, error) {
	if strings.TrimSpace(req.Title) == "" {
		return tracker.Project{}, errors.New("project title required")
	}
	label := req.SourceLabel
	if label == "" {
		label = tracker.SourceLocal
	}

	pr, err := scanProject(r.pool.QueryRow(ctx, `
		INSERT INTO projects(id, title, description, source_label)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT ((lower(title))) DO NOTHING
		RETURNING `+projectColumns,
		uuid.NewString(), req.Title, req.Description, string(label)))
	if err == nil {
		return pr, nil
	}
	// Conflict produces no rows because RETURNING returns nothing.
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByName(ctx, req.Title)
	}
	return tracker.Project{}, err
}

func (r projectRepo) List(ctx context.Context) ([]tracker.Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Project
	for rows.Next() {
		pr, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

type workItemRepo struct{ pool *pgxpool.Pool }

const foreignKeyViolation = "23503"

const workItemColumns = `id::text, project_id::text, title, description, status, priority,
	source_label, source_data, due_date, created_at, updated_at`

func scanWorkItem(row pgx.Row) (tracker.WorkItem, error) {
	var (
		item       tracker.WorkItem
		id, projID string
		status     string
		priority   *string
		label      string
		sourceData []byte
	)
	err := row.Scan(&id, &projID, &item.Title, &item.Description, &status, &priority,
		&label, &sourceData, &item.DueDate, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return tracker.WorkItem{}, err
	}
	if item.ID, err = uuid.Parse(id); err != nil {
		return tracker.WorkItem{}, err
	}
	if item.ProjectID, err = uuid.Parse(projID); err != nil {
		return tracker.WorkItem{}, err
	}
	item.Status = tracker.Status(status)
	item.SourceLabel = tracker.SourceLabel(label)
	if priority != nil {
		pr := tracker.Priority(*priority)
		item.Priority = &pr
	}
	if len(sourceData) > 0 {
		if err := json.Unmarshal(sourceData, &item.SourceData); err != nil {
			return tracker.WorkItem{}, fmt.Errorf("decode source_data: %w", err)
		}
	}
	return item, nil
}

func (r workItemRepo) Create(ctx context.Context, projectID uuid.UUID, req tracker.CreateWorkItemRequest) (tracker.WorkItem, error) {
	if strings.TrimSpace(req.Title) == "" {
		return tracker.WorkItem{}, errors.New("work item title required")
	}
	status := req.Status
	if status == "" {
		status = tracker.StatusNew
	}
	label := req.SourceLabel
	if label == "" {
		label = tracker.SourceLocal
	}
	var priority *string
	if req.Priority != nil {
		s := string(*req.Priority)
		priority = &s
	}
	var sourceData []byte
	if req.SourceData != nil {
		b, err := json.Marshal(req.SourceData)
		if err != nil {
			return tracker.WorkItem{}, err
		}
		sourceData = b
	}

	item, err := scanWorkItem(r.pool.QueryRow(ctx, `
		INSERT INTO work_items(id, project_id, title, description, status, priority, source_label, source_data, due_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+workItemColumns,
		uuid.NewString(), projectID.String(), req.Title, req.Description, string(status),
		priority, string(label), sourceData, req.DueDate))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return tracker.WorkItem{}, fmt.Errorf("project %s: %w", projectID, tracker.ErrNotFound)
	}
	return item, err
}

func (r workItemRepo) List(ctx context.Context, projectID uuid.UUID) ([]tracker.WorkItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE project_id = $1 ORDER BY created_at, id`,
		projectID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r workItemRepo) Get(ctx context.Context, projectID, id uuid.UUID) (tracker.WorkItem, error) {
	item, err := scanWorkItem(r.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE project_id = $1 AND id = $2`,
		projectID.String(), id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.WorkItem{}, fmt.Errorf("work item %s: %w", id, tracker.ErrNotFound)
	}
	return item, err
}

func (r workItemRepo) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM work_items WHERE project_id = $1 AND id = $2`,
		projectID.String(), id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item %s: %w", id, tracker.ErrNotFound)
	}
	return nil
}
