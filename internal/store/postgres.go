package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/signals/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock's pool
// implements it too, which is what the postgres tests run against.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to the given database URL and verifies the
// connection.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS synced_emails (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	subject        TEXT NOT NULL DEFAULT '',
	from_name      TEXT NOT NULL DEFAULT '',
	from_email     TEXT NOT NULL DEFAULT '',
	sent_at        TIMESTAMPTZ,
	thread_id      TEXT NOT NULL DEFAULT '',
	preview_text   TEXT NOT NULL DEFAULT '',
	html_body      TEXT NOT NULL DEFAULT '',
	snippet        TEXT NOT NULL DEFAULT '',
	application_id TEXT,
	extracted_data JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS applications (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	company          TEXT NOT NULL DEFAULT '',
	role             TEXT NOT NULL DEFAULT '',
	pipeline_stage   TEXT NOT NULL DEFAULT 'applied',
	status           TEXT NOT NULL DEFAULT 'active',
	opportunity_id   TEXT,
	company_feedback TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rounds (
	id               TEXT PRIMARY KEY,
	application_id   TEXT NOT NULL REFERENCES applications(id),
	stage            TEXT NOT NULL DEFAULT '',
	stage_name       TEXT NOT NULL DEFAULT '',
	scheduled_at     TIMESTAMPTZ,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	interviewer_name TEXT NOT NULL DEFAULT '',
	video_link       TEXT NOT NULL DEFAULT '',
	result           TEXT NOT NULL DEFAULT 'pending',
	decided_at       TIMESTAMPTZ,
	source_email_id  TEXT NOT NULL,
	position         INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(application_id, source_email_id)
);

CREATE TABLE IF NOT EXISTS opportunities (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	company         TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT '',
	source_email_id TEXT NOT NULL UNIQUE,
	job_listing_id  TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_listings (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	company    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id              TEXT PRIMARY KEY,
	job_listing_id  TEXT NOT NULL REFERENCES job_listings(id),
	url             TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	source_email_id TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(job_listing_id, source_email_id)
);

CREATE TABLE IF NOT EXISTS interview_feedback (
	id              TEXT PRIMARY KEY,
	round_id        TEXT NOT NULL UNIQUE REFERENCES rounds(id),
	summary         TEXT NOT NULL DEFAULT '',
	sentiment       TEXT NOT NULL DEFAULT '',
	source_email_id TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	synced_email_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	trigger_source  TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'started',
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ,
	duration_ms     BIGINT,
	metadata        JSONB
);

CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	step_order     INTEGER NOT NULL,
	event_type     TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'started',
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ,
	duration_ms    BIGINT,
	input_payload  JSONB,
	output_payload JSONB,
	error_type     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	metadata       JSONB,
	UNIQUE(run_id, step_order)
);

CREATE INDEX IF NOT EXISTS idx_rounds_application ON rounds(application_id);
CREATE INDEX IF NOT EXISTS idx_runs_email ON runs(synced_email_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// -- Synced emails --

func (s *PostgresStore) CreateEmail(ctx context.Context, email *model.SyncedEmail) error {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	email.CreatedAt = now
	email.UpdatedAt = now

	extracted := email.ExtractedData
	if extracted == nil {
		extracted = map[string]json.RawMessage{}
	}
	extractedJSON, err := json.Marshal(extracted)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extracted data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO synced_emails
		 (id, user_id, subject, from_name, from_email, sent_at, thread_id, preview_text, html_body, snippet, application_id, extracted_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		email.ID, email.UserID, email.Subject, email.FromName, email.FromEmail,
		email.SentAt, email.ThreadID, email.PreviewText, email.HTMLBody, email.Snippet,
		nullString(email.ApplicationID), string(extractedJSON), now, now,
	)
	return eris.Wrapf(err, "postgres: insert email %s", email.ID)
}

func (s *PostgresStore) GetEmail(ctx context.Context, id string) (*model.SyncedEmail, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, subject, from_name, from_email, sent_at, thread_id, preview_text, html_body, snippet, application_id, extracted_data, created_at, updated_at
		 FROM synced_emails WHERE id = $1`, id)

	var em model.SyncedEmail
	var sentAt sql.NullTime
	var appID sql.NullString
	var extractedJSON []byte
	err := row.Scan(&em.ID, &em.UserID, &em.Subject, &em.FromName, &em.FromEmail,
		&sentAt, &em.ThreadID, &em.PreviewText, &em.HTMLBody, &em.Snippet,
		&appID, &extractedJSON, &em.CreatedAt, &em.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("postgres: email %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get email %s", id)
	}
	if sentAt.Valid {
		em.SentAt = sentAt.Time
	}
	em.ApplicationID = appID.String
	if err := json.Unmarshal(extractedJSON, &em.ExtractedData); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal extracted data")
	}
	return &em, nil
}

func (s *PostgresStore) ListPendingEmails(ctx context.Context, limit int) ([]model.SyncedEmail, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, subject, from_name, from_email, sent_at, thread_id, preview_text, html_body, snippet, application_id, extracted_data, created_at, updated_at
		 FROM synced_emails
		 WHERE NOT (extracted_data ? 'decision_execution_v1')
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending emails")
	}
	defer rows.Close()

	var emails []model.SyncedEmail
	for rows.Next() {
		var em model.SyncedEmail
		var sentAt sql.NullTime
		var appID sql.NullString
		var extractedJSON []byte
		if err := rows.Scan(&em.ID, &em.UserID, &em.Subject, &em.FromName, &em.FromEmail,
			&sentAt, &em.ThreadID, &em.PreviewText, &em.HTMLBody, &em.Snippet,
			&appID, &extractedJSON, &em.CreatedAt, &em.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending email")
		}
		if sentAt.Valid {
			em.SentAt = sentAt.Time
		}
		em.ApplicationID = appID.String
		if err := json.Unmarshal(extractedJSON, &em.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extracted data")
		}
		emails = append(emails, em)
	}
	return emails, rows.Err()
}

func (s *PostgresStore) MergeExtractedData(ctx context.Context, emailID, key string, value json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE synced_emails
		 SET extracted_data = jsonb_set(extracted_data, ARRAY[$2]::text[], $3::jsonb, true), updated_at = now()
		 WHERE id = $1`,
		emailID, key, string(value),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: merge extracted data %s", emailID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: email %s not found", emailID)
	}
	return nil
}

// -- Applications and rounds --

func (s *PostgresStore) CreateApplication(ctx context.Context, app *model.InterviewApplication) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.PipelineStage == "" {
		app.PipelineStage = "applied"
	}
	if app.Status == "" {
		app.Status = "active"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (id, user_id, company, role, pipeline_stage, status, opportunity_id, company_feedback, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		app.ID, app.UserID, app.Company, app.Role, app.PipelineStage, app.Status,
		nullString(app.OpportunityID), nullString(app.CompanyFeedback), now, now,
	)
	return eris.Wrapf(err, "postgres: insert application %s", app.ID)
}

func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*model.InterviewApplication, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, company, role, pipeline_stage, status, opportunity_id, company_feedback, created_at, updated_at
		 FROM applications WHERE id = $1`, id)

	var app model.InterviewApplication
	var oppID, feedback sql.NullString
	err := row.Scan(&app.ID, &app.UserID, &app.Company, &app.Role, &app.PipelineStage,
		&app.Status, &oppID, &feedback, &app.CreatedAt, &app.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get application %s", id)
	}
	app.OpportunityID = oppID.String
	app.CompanyFeedback = feedback.String
	return &app, nil
}

const pgRoundColumns = `id, application_id, stage, stage_name, scheduled_at, duration_minutes, interviewer_name, video_link, result, decided_at, source_email_id, position, created_at`

func (s *PostgresStore) ListRounds(ctx context.Context, applicationID string) ([]model.InterviewRound, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRoundColumns+` FROM rounds WHERE application_id = $1 ORDER BY position, created_at`,
		applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rounds")
	}
	defer rows.Close()

	var rounds []model.InterviewRound
	for rows.Next() {
		r, err := scanRoundFrom(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *r)
	}
	return rounds, eris.Wrap(rows.Err(), "postgres: list rounds iterate")
}

func (s *PostgresStore) GetRound(ctx context.Context, id string) (*model.InterviewRound, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRoundColumns+` FROM rounds WHERE id = $1`, id)
	r, err := scanPgRound(row)
	if err != nil && eris.Is(err, errNoRow) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) FindOrCreateRound(ctx context.Context, round model.InterviewRound) (*model.InterviewRound, bool, error) {
	if round.ID == "" {
		round.ID = uuid.New().String()
	}
	if round.Result == "" {
		round.Result = model.RoundResultPending
	}
	round.CreatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO rounds (id, application_id, stage, stage_name, scheduled_at, duration_minutes, interviewer_name, video_link, result, decided_at, source_email_id, position, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			 (SELECT COALESCE(MAX(position), 0) + 1 FROM rounds WHERE application_id = $2), $12)
		 ON CONFLICT (application_id, source_email_id) DO NOTHING`,
		round.ID, round.ApplicationID, round.Stage, round.StageName, nullTime(round.ScheduledAt),
		round.DurationMinutes, round.InterviewerName, round.VideoLink, round.Result,
		nullTime(round.DecidedAt), round.SourceEmailID, round.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: insert round")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRoundColumns+` FROM rounds WHERE application_id = $1 AND source_email_id = $2`,
		round.ApplicationID, round.SourceEmailID)
	existing, scanErr := scanPgRound(row)
	if scanErr != nil {
		return nil, false, scanErr
	}
	return existing, tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetRoundResult(ctx context.Context, roundID, result string, decidedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds SET result = $1, decided_at = $2 WHERE id = $3 AND result = $4`,
		result, decidedAt.UTC(), roundID, model.RoundResultPending,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set round result %s", roundID)
	}
	return tag.RowsAffected() > 0, nil
}

// -- Opportunities and listings --

func (s *PostgresStore) FindOrCreateOpportunity(ctx context.Context, opp model.Opportunity) (*model.Opportunity, bool, error) {
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	opp.CreatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO opportunities (id, user_id, company, role, source_email_id, job_listing_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_email_id) DO NOTHING`,
		opp.ID, opp.UserID, opp.Company, opp.Role, opp.SourceEmailID,
		nullString(opp.JobListingID), opp.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: insert opportunity")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, company, role, source_email_id, job_listing_id, created_at
		 FROM opportunities WHERE source_email_id = $1`, opp.SourceEmailID)
	var existing model.Opportunity
	var listingID sql.NullString
	if err := row.Scan(&existing.ID, &existing.UserID, &existing.Company, &existing.Role,
		&existing.SourceEmailID, &listingID, &existing.CreatedAt); err != nil {
		return nil, false, eris.Wrap(err, "postgres: read opportunity")
	}
	existing.JobListingID = listingID.String
	return &existing, tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetOpportunityBySourceEmail(ctx context.Context, sourceEmailID string) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, company, role, source_email_id, job_listing_id, created_at
		 FROM opportunities WHERE source_email_id = $1`, sourceEmailID)
	var opp model.Opportunity
	var listingID sql.NullString
	err := row.Scan(&opp.ID, &opp.UserID, &opp.Company, &opp.Role,
		&opp.SourceEmailID, &listingID, &opp.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get opportunity")
	}
	opp.JobListingID = listingID.String
	return &opp, nil
}

func (s *PostgresStore) GetJobListingByURL(ctx context.Context, url string) (*model.JobListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, title, company, created_at, updated_at FROM job_listings WHERE url = $1`, url)
	var listing model.JobListing
	err := row.Scan(&listing.ID, &listing.URL, &listing.Title, &listing.Company,
		&listing.CreatedAt, &listing.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get listing")
	}
	return &listing, nil
}

func (s *PostgresStore) UpsertJobListing(ctx context.Context, listing model.JobListing) (*model.JobListing, bool, error) {
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_listings (id, url, title, company, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (url) DO UPDATE SET
			 title = CASE WHEN excluded.title != '' THEN excluded.title ELSE job_listings.title END,
			 company = CASE WHEN excluded.company != '' THEN excluded.company ELSE job_listings.company END,
			 updated_at = excluded.updated_at`,
		listing.ID, listing.URL, listing.Title, listing.Company, now, now,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: upsert listing")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, url, title, company, created_at, updated_at FROM job_listings WHERE url = $1`,
		listing.URL)
	var existing model.JobListing
	if err := row.Scan(&existing.ID, &existing.URL, &existing.Title, &existing.Company,
		&existing.CreatedAt, &existing.UpdatedAt); err != nil {
		return nil, false, eris.Wrap(err, "postgres: read listing")
	}
	return &existing, existing.ID == listing.ID, nil
}

func (s *PostgresStore) AttachListingToOpportunity(ctx context.Context, opportunityID, listingID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET job_listing_id = $1 WHERE id = $2 AND job_listing_id IS NULL`,
		listingID, opportunityID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: attach listing to %s", opportunityID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) EnqueueScrapeJob(ctx context.Context, job model.ScrapeJob) (*model.ScrapeJob, bool, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.ScrapeJobQueued
	}
	job.CreatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, job_listing_id, url, status, source_email_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_listing_id, source_email_id) DO NOTHING`,
		job.ID, job.JobListingID, job.URL, string(job.Status), job.SourceEmailID, job.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: enqueue scrape job")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, job_listing_id, url, status, source_email_id, created_at
		 FROM scrape_jobs WHERE job_listing_id = $1 AND source_email_id = $2`,
		job.JobListingID, job.SourceEmailID)
	var existing model.ScrapeJob
	var status string
	if err := row.Scan(&existing.ID, &existing.JobListingID, &existing.URL, &status,
		&existing.SourceEmailID, &existing.CreatedAt); err != nil {
		return nil, false, eris.Wrap(err, "postgres: read scrape job")
	}
	existing.Status = model.ScrapeJobStatus(status)
	return &existing, tag.RowsAffected() > 0, nil
}

// -- Feedback and application state --

func (s *PostgresStore) FindOrCreateInterviewFeedback(ctx context.Context, fb model.InterviewFeedback) (*model.InterviewFeedback, bool, error) {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	fb.CreatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO interview_feedback (id, round_id, summary, sentiment, source_email_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (round_id) DO NOTHING`,
		fb.ID, fb.RoundID, fb.Summary, fb.Sentiment, fb.SourceEmailID, fb.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: insert feedback")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, round_id, summary, sentiment, source_email_id, created_at
		 FROM interview_feedback WHERE round_id = $1`, fb.RoundID)
	var existing model.InterviewFeedback
	if err := row.Scan(&existing.ID, &existing.RoundID, &existing.Summary, &existing.Sentiment,
		&existing.SourceEmailID, &existing.CreatedAt); err != nil {
		return nil, false, eris.Wrap(err, "postgres: read feedback")
	}
	return &existing, tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListFeedbackRoundIDs(ctx context.Context, applicationID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.round_id FROM interview_feedback f
		 JOIN rounds r ON r.id = f.round_id
		 WHERE r.application_id = $1`, applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback round ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback round id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list feedback round ids iterate")
}

func (s *PostgresStore) SetCompanyFeedback(ctx context.Context, applicationID, feedback string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET company_feedback = $1, updated_at = now() WHERE id = $2 AND company_feedback IS NULL`,
		feedback, applicationID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set company feedback %s", applicationID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetPipelineStage(ctx context.Context, applicationID, stage string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET pipeline_stage = $1, updated_at = now() WHERE id = $2 AND pipeline_stage != $1`,
		stage, applicationID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set pipeline stage %s", applicationID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetApplicationStatus(ctx context.Context, applicationID, status string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET status = $1, updated_at = now() WHERE id = $2 AND status != $1`,
		status, applicationID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set application status %s", applicationID)
	}
	return tag.RowsAffected() > 0, nil
}

// -- Runs and events --

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusStarted
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, synced_email_id, user_id, trigger_source, mode, status, started_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.SyncedEmailID, run.UserID, string(run.Trigger), run.Mode,
		string(run.Status), run.StartedAt, rawOrNil(run.Metadata),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, fin RunFinish) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2, duration_ms = $3, metadata = COALESCE($4, metadata)
		 WHERE id = $5`,
		string(fin.Status), fin.CompletedAt.UTC(), fin.DurationMS, rawOrNil(fin.Metadata), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run %s not found", runID)
	}
	return nil
}

const pgRunColumns = `id, synced_email_id, user_id, trigger_source, mode, status, started_at, completed_at, duration_ms, metadata`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID)
	return scanPgRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholders[len(args)]
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.EmailID != "" {
		query += ` AND synced_email_id = ` + arg(filter.EmailID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var placeholders = []string{"", "$1", "$2", "$3", "$4", "$5", "$6"}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Status == "" {
		event.Status = model.EventStatusStarted
	}
	if event.StartedAt.IsZero() {
		event.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, run_id, step_order, event_type, status, started_at, input_payload, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.RunID, event.StepOrder, event.EventType, string(event.Status),
		event.StartedAt, rawOrNil(event.InputPayload), rawOrNil(event.Metadata),
	)
	return eris.Wrapf(err, "postgres: insert event %s", event.ID)
}

func (s *PostgresStore) FinishEvent(ctx context.Context, eventID string, fin EventFinish) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET status = $1, completed_at = $2, duration_ms = $3, output_payload = $4, error_type = $5, error_message = $6
		 WHERE id = $7 AND status = $8`,
		string(fin.Status), fin.CompletedAt.UTC(), fin.DurationMS, rawOrNil(fin.OutputPayload),
		fin.ErrorType, fin.ErrorMessage, eventID, string(model.EventStatusStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish event %s", eventID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("event %s not found", eventID)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, runID string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, step_order, event_type, status, started_at, completed_at, duration_ms, input_payload, output_payload, error_type, error_message, metadata
		 FROM events WHERE run_id = $1 ORDER BY step_order`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var status string
		var completedAt sql.NullTime
		var durationMS sql.NullInt64
		var input, output, metadata []byte
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.StepOrder, &ev.EventType, &status,
			&ev.StartedAt, &completedAt, &durationMS, &input, &output,
			&ev.ErrorType, &ev.ErrorMessage, &metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Status = model.EventStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			ev.CompletedAt = &t
		}
		ev.DurationMS = durationMS.Int64
		ev.InputPayload = json.RawMessage(input)
		ev.OutputPayload = json.RawMessage(output)
		ev.Metadata = json.RawMessage(metadata)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

// -- helpers --

func scanPgRound(row pgx.Row) (*model.InterviewRound, error) {
	r, err := scanRoundFrom(row)
	return r, err
}

func scanRoundFrom(row rowScanner) (*model.InterviewRound, error) {
	var r model.InterviewRound
	var scheduledAt, decidedAt sql.NullTime
	err := row.Scan(&r.ID, &r.ApplicationID, &r.Stage, &r.StageName, &scheduledAt,
		&r.DurationMinutes, &r.InterviewerName, &r.VideoLink, &r.Result, &decidedAt,
		&r.SourceEmailID, &r.Position, &r.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrap(errNoRow, "postgres: round not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan round")
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		r.ScheduledAt = &t
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	return &r, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	return scanPgRunFrom(row)
}

func scanPgRunRow(rows pgx.Rows) (*model.Run, error) {
	return scanPgRunFrom(rows)
}

func scanPgRunFrom(row rowScanner) (*model.Run, error) {
	var r model.Run
	var trigger, status string
	var completedAt sql.NullTime
	var durationMS sql.NullInt64
	var metadata []byte
	err := row.Scan(&r.ID, &r.SyncedEmailID, &r.UserID, &trigger, &r.Mode, &status,
		&r.StartedAt, &completedAt, &durationMS, &metadata)
	if err == pgx.ErrNoRows {
		return nil, eris.New("postgres: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Trigger = model.Trigger(trigger)
	r.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.DurationMS = durationMS.Int64
	r.Metadata = json.RawMessage(metadata)
	return &r, nil
}
