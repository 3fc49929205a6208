package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/signals/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS synced_emails (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	subject        TEXT NOT NULL DEFAULT '',
	from_name      TEXT NOT NULL DEFAULT '',
	from_email     TEXT NOT NULL DEFAULT '',
	sent_at        DATETIME,
	thread_id      TEXT NOT NULL DEFAULT '',
	preview_text   TEXT NOT NULL DEFAULT '',
	html_body      TEXT NOT NULL DEFAULT '',
	snippet        TEXT NOT NULL DEFAULT '',
	application_id TEXT,
	extracted_data TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rounds (
	id               TEXT PRIMARY KEY,
	application_id   TEXT NOT NULL REFERENCES applications(id),
	stage            TEXT NOT NULL DEFAULT '',
	stage_name       TEXT NOT NULL DEFAULT '',
	scheduled_at     DATETIME,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	interviewer_name TEXT NOT NULL DEFAULT '',
	video_link       TEXT NOT NULL DEFAULT '',
	result           TEXT NOT NULL DEFAULT 'pending',
	decided_at       DATETIME,
	source_email_id  TEXT NOT NULL,
	position         INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(application_id, source_email_id)
);

CREATE TABLE IF NOT EXISTS opportunities (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	company         TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT '',
	source_email_id TEXT NOT NULL UNIQUE,
	job_listing_id  TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_listings (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	company    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id              TEXT PRIMARY KEY,
	job_listing_id  TEXT NOT NULL REFERENCES job_listings(id),
	url             TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	source_email_id TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(job_listing_id, source_email_id)
);

CREATE TABLE IF NOT EXISTS interview_feedback (
	id              TEXT PRIMARY KEY,
	round_id        TEXT NOT NULL UNIQUE REFERENCES rounds(id),
	summary         TEXT NOT NULL DEFAULT '',
	sentiment       TEXT NOT NULL DEFAULT '',
	source_email_id TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	synced_email_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	trigger_source  TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'started',
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME,
	duration_ms     INTEGER,
	metadata        TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	step_order     INTEGER NOT NULL,
	event_type     TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'started',
	started_at     DATETIME NOT NULL,
	completed_at   DATETIME,
	duration_ms    INTEGER,
	input_payload  TEXT,
	output_payload TEXT,
	error_type     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	metadata       TEXT,
	UNIQUE(run_id, step_order)
);

CREATE INDEX IF NOT EXISTS idx_rounds_application ON rounds(application_id);
CREATE INDEX IF NOT EXISTS idx_runs_email ON runs(synced_email_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- Synced emails --

func (s *SQLiteStore) CreateEmail(ctx context.Context, email *model.SyncedEmail) error {
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
		return eris.Wrap(err, "sqlite: marshal extracted data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO synced_emails
		 (id, user_id, subject, from_name, from_email, sent_at, thread_id, preview_text, html_body, snippet, application_id, extracted_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email.ID, email.UserID, email.Subject, email.FromName, email.FromEmail,
		email.SentAt, email.ThreadID, email.PreviewText, email.HTMLBody, email.Snippet,
		nullString(email.ApplicationID), string(extractedJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert email %s", email.ID)
}

func (s *SQLiteStore) GetEmail(ctx context.Context, id string) (*model.SyncedEmail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, subject, from_name, from_email, sent_at, thread_id, preview_text, html_body, snippet, application_id, extracted_data, created_at, updated_at
		 FROM synced_emails WHERE id = ?`, id)

	var em model.SyncedEmail
	var sentAt sql.NullTime
	var appID sql.NullString
	var extractedJSON string
	err := row.Scan(&em.ID, &em.UserID, &em.Subject, &em.FromName, &em.FromEmail,
		&sentAt, &em.ThreadID, &em.PreviewText, &em.HTMLBody, &em.Snippet,
		&appID, &extractedJSON, &em.CreatedAt, &em.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: email %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get email %s", id)
	}
	if sentAt.Valid {
		em.SentAt = sentAt.Time
	}
	em.ApplicationID = appID.String
	if err := json.Unmarshal([]byte(extractedJSON), &em.ExtractedData); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal extracted data")
	}
	return &em, nil
}

func (s *SQLiteStore) ListPendingEmails(ctx context.Context, limit int) ([]model.SyncedEmail, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, subject, from_name, from_email, sent_at, thread_id, preview_text, html_body, snippet, application_id, extracted_data, created_at, updated_at
		 FROM synced_emails
		 WHERE json_extract(extracted_data, '$.decision_execution_v1') IS NULL
		 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending emails")
	}
	defer rows.Close()

	var emails []model.SyncedEmail
	for rows.Next() {
		var em model.SyncedEmail
		var sentAt sql.NullTime
		var appID sql.NullString
		var extractedJSON string
		if err := rows.Scan(&em.ID, &em.UserID, &em.Subject, &em.FromName, &em.FromEmail,
			&sentAt, &em.ThreadID, &em.PreviewText, &em.HTMLBody, &em.Snippet,
			&appID, &extractedJSON, &em.CreatedAt, &em.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending email")
		}
		if sentAt.Valid {
			em.SentAt = sentAt.Time
		}
		em.ApplicationID = appID.String
		if err := json.Unmarshal([]byte(extractedJSON), &em.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extracted data")
		}
		emails = append(emails, em)
	}
	return emails, rows.Err()
}

func (s *SQLiteStore) MergeExtractedData(ctx context.Context, emailID, key string, value json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	var extractedJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT extracted_data FROM synced_emails WHERE id = ?`, emailID,
	).Scan(&extractedJSON)
	if err == sql.ErrNoRows {
		return eris.Errorf("sqlite: email %s not found", emailID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read extracted data %s", emailID)
	}

	data := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(extractedJSON), &data); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal extracted data")
	}
	data[key] = value
	merged, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extracted data")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE synced_emails SET extracted_data = ?, updated_at = ? WHERE id = ?`,
		string(merged), time.Now().UTC(), emailID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: merge extracted data %s", emailID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

// -- Applications and rounds --

func (s *SQLiteStore) CreateApplication(ctx context.Context, app *model.InterviewApplication) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (id, user_id, company, role, pipeline_stage, status, opportunity_id, company_feedback, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.UserID, app.Company, app.Role, app.PipelineStage, app.Status,
		nullString(app.OpportunityID), nullString(app.CompanyFeedback), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert application %s", app.ID)
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*model.InterviewApplication, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, company, role, pipeline_stage, status, opportunity_id, company_feedback, created_at, updated_at
		 FROM applications WHERE id = ?`, id)

	var app model.InterviewApplication
	var oppID, feedback sql.NullString
	err := row.Scan(&app.ID, &app.UserID, &app.Company, &app.Role, &app.PipelineStage,
		&app.Status, &oppID, &feedback, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get application %s", id)
	}
	app.OpportunityID = oppID.String
	app.CompanyFeedback = feedback.String
	return &app, nil
}

func (s *SQLiteStore) ListRounds(ctx context.Context, applicationID string) ([]model.InterviewRound, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, stage, stage_name, scheduled_at, duration_minutes, interviewer_name, video_link, result, decided_at, source_email_id, position, created_at
		 FROM rounds WHERE application_id = ? ORDER BY position, created_at`, applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rounds")
	}
	defer rows.Close()

	var rounds []model.InterviewRound
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *r)
	}
	return rounds, eris.Wrap(rows.Err(), "sqlite: list rounds iterate")
}

func (s *SQLiteStore) GetRound(ctx context.Context, id string) (*model.InterviewRound, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, stage, stage_name, scheduled_at, duration_minutes, interviewer_name, video_link, result, decided_at, source_email_id, position, created_at
		 FROM rounds WHERE id = ?`, id)
	r, err := scanRound(row)
	if err != nil && eris.Is(err, errNoRow) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) FindOrCreateRound(ctx context.Context, round model.InterviewRound) (*model.InterviewRound, bool, error) {
	if round.ID == "" {
		round.ID = uuid.New().String()
	}
	if round.Result == "" {
		round.Result = model.RoundResultPending
	}
	round.CreatedAt = time.Now().UTC()

	// Position is the next slot at insert time. The unique constraint on
	// (application_id, source_email_id) makes concurrent duplicates
	// collapse to one row.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, application_id, stage, stage_name, scheduled_at, duration_minutes, interviewer_name, video_link, result, decided_at, source_email_id, position, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			 (SELECT COALESCE(MAX(position), 0) + 1 FROM rounds WHERE application_id = ?), ?)
		 ON CONFLICT(application_id, source_email_id) DO NOTHING`,
		round.ID, round.ApplicationID, round.Stage, round.StageName, nullTime(round.ScheduledAt),
		round.DurationMinutes, round.InterviewerName, round.VideoLink, round.Result,
		nullTime(round.DecidedAt), round.SourceEmailID, round.ApplicationID, round.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: insert round")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, stage, stage_name, scheduled_at, duration_minutes, interviewer_name, video_link, result, decided_at, source_email_id, position, created_at
		 FROM rounds WHERE application_id = ? AND source_email_id = ?`,
		round.ApplicationID, round.SourceEmailID)
	existing, scanErr := scanRound(row)
	if scanErr != nil {
		return nil, false, scanErr
	}
	return existing, n > 0, nil
}

func (s *SQLiteStore) SetRoundResult(ctx context.Context, roundID, result string, decidedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rounds SET result = ?, decided_at = ? WHERE id = ? AND result = ?`,
		result, decidedAt.UTC(), roundID, model.RoundResultPending,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set round result %s", roundID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

// -- Opportunities and listings --

func (s *SQLiteStore) FindOrCreateOpportunity(ctx context.Context, opp model.Opportunity) (*model.Opportunity, bool, error) {
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	opp.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO opportunities (id, user_id, company, role, source_email_id, job_listing_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_email_id) DO NOTHING`,
		opp.ID, opp.UserID, opp.Company, opp.Role, opp.SourceEmailID,
		nullString(opp.JobListingID), opp.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: insert opportunity")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, company, role, source_email_id, job_listing_id, created_at
		 FROM opportunities WHERE source_email_id = ?`, opp.SourceEmailID)
	var existing model.Opportunity
	var listingID sql.NullString
	if err := row.Scan(&existing.ID, &existing.UserID, &existing.Company, &existing.Role,
		&existing.SourceEmailID, &listingID, &existing.CreatedAt); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: read opportunity")
	}
	existing.JobListingID = listingID.String
	return &existing, n > 0, nil
}

func (s *SQLiteStore) GetOpportunityBySourceEmail(ctx context.Context, sourceEmailID string) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, company, role, source_email_id, job_listing_id, created_at
		 FROM opportunities WHERE source_email_id = ?`, sourceEmailID)
	var opp model.Opportunity
	var listingID sql.NullString
	err := row.Scan(&opp.ID, &opp.UserID, &opp.Company, &opp.Role,
		&opp.SourceEmailID, &listingID, &opp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get opportunity")
	}
	opp.JobListingID = listingID.String
	return &opp, nil
}

func (s *SQLiteStore) GetJobListingByURL(ctx context.Context, url string) (*model.JobListing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, company, created_at, updated_at FROM job_listings WHERE url = ?`, url)
	var listing model.JobListing
	err := row.Scan(&listing.ID, &listing.URL, &listing.Title, &listing.Company,
		&listing.CreatedAt, &listing.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get listing")
	}
	return &listing, nil
}

func (s *SQLiteStore) UpsertJobListing(ctx context.Context, listing model.JobListing) (*model.JobListing, bool, error) {
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_listings (id, url, title, company, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			 title = CASE WHEN excluded.title != '' THEN excluded.title ELSE job_listings.title END,
			 company = CASE WHEN excluded.company != '' THEN excluded.company ELSE job_listings.company END,
			 updated_at = excluded.updated_at`,
		listing.ID, listing.URL, listing.Title, listing.Company, now, now,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: upsert listing")
	}
	_ = res

	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, company, created_at, updated_at FROM job_listings WHERE url = ?`,
		listing.URL)
	var existing model.JobListing
	if err := row.Scan(&existing.ID, &existing.URL, &existing.Title, &existing.Company,
		&existing.CreatedAt, &existing.UpdatedAt); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: read listing")
	}
	created := existing.ID == listing.ID
	return &existing, created, nil
}

func (s *SQLiteStore) AttachListingToOpportunity(ctx context.Context, opportunityID, listingID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET job_listing_id = ? WHERE id = ? AND job_listing_id IS NULL`,
		listingID, opportunityID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: attach listing to %s", opportunityID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) EnqueueScrapeJob(ctx context.Context, job model.ScrapeJob) (*model.ScrapeJob, bool, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.ScrapeJobQueued
	}
	job.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, job_listing_id, url, status, source_email_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_listing_id, source_email_id) DO NOTHING`,
		job.ID, job.JobListingID, job.URL, string(job.Status), job.SourceEmailID, job.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: enqueue scrape job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_listing_id, url, status, source_email_id, created_at
		 FROM scrape_jobs WHERE job_listing_id = ? AND source_email_id = ?`,
		job.JobListingID, job.SourceEmailID)
	var existing model.ScrapeJob
	var status string
	if err := row.Scan(&existing.ID, &existing.JobListingID, &existing.URL, &status,
		&existing.SourceEmailID, &existing.CreatedAt); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: read scrape job")
	}
	existing.Status = model.ScrapeJobStatus(status)
	return &existing, n > 0, nil
}

// -- Feedback and application state --

func (s *SQLiteStore) FindOrCreateInterviewFeedback(ctx context.Context, fb model.InterviewFeedback) (*model.InterviewFeedback, bool, error) {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	fb.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_feedback (id, round_id, summary, sentiment, source_email_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(round_id) DO NOTHING`,
		fb.ID, fb.RoundID, fb.Summary, fb.Sentiment, fb.SourceEmailID, fb.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: insert feedback")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, round_id, summary, sentiment, source_email_id, created_at
		 FROM interview_feedback WHERE round_id = ?`, fb.RoundID)
	var existing model.InterviewFeedback
	if err := row.Scan(&existing.ID, &existing.RoundID, &existing.Summary, &existing.Sentiment,
		&existing.SourceEmailID, &existing.CreatedAt); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: read feedback")
	}
	return &existing, n > 0, nil
}

func (s *SQLiteStore) ListFeedbackRoundIDs(ctx context.Context, applicationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.round_id FROM interview_feedback f
		 JOIN rounds r ON r.id = f.round_id
		 WHERE r.application_id = ?`, applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback round ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback round id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list feedback round ids iterate")
}

func (s *SQLiteStore) SetCompanyFeedback(ctx context.Context, applicationID, feedback string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET company_feedback = ?, updated_at = ? WHERE id = ? AND company_feedback IS NULL`,
		feedback, time.Now().UTC(), applicationID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set company feedback %s", applicationID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetPipelineStage(ctx context.Context, applicationID, stage string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET pipeline_stage = ?, updated_at = ? WHERE id = ? AND pipeline_stage != ?`,
		stage, time.Now().UTC(), applicationID, stage,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set pipeline stage %s", applicationID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetApplicationStatus(ctx context.Context, applicationID, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		status, time.Now().UTC(), applicationID, status,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set application status %s", applicationID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

// -- Runs and events --

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusStarted
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, synced_email_id, user_id, trigger_source, mode, status, started_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SyncedEmailID, run.UserID, string(run.Trigger), run.Mode,
		string(run.Status), run.StartedAt, rawOrNil(run.Metadata),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, fin RunFinish) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, duration_ms = ?, metadata = COALESCE(?, metadata)
		 WHERE id = ?`,
		string(fin.Status), fin.CompletedAt.UTC(), fin.DurationMS, rawOrNil(fin.Metadata), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, synced_email_id, user_id, trigger_source, mode, status, started_at, completed_at, duration_ms, metadata
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, synced_email_id, user_id, trigger_source, mode, status, started_at, completed_at, duration_ms, metadata FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.EmailID != "" {
		query += ` AND synced_email_id = ?`
		args = append(args, filter.EmailID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRunFromRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Status == "" {
		event.Status = model.EventStatusStarted
	}
	if event.StartedAt.IsZero() {
		event.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, run_id, step_order, event_type, status, started_at, input_payload, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, event.StepOrder, event.EventType, string(event.Status),
		event.StartedAt, rawOrNil(event.InputPayload), rawOrNil(event.Metadata),
	)
	return eris.Wrapf(err, "sqlite: insert event %s", event.ID)
}

func (s *SQLiteStore) FinishEvent(ctx context.Context, eventID string, fin EventFinish) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, completed_at = ?, duration_ms = ?, output_payload = ?, error_type = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		string(fin.Status), fin.CompletedAt.UTC(), fin.DurationMS, rawOrNil(fin.OutputPayload),
		fin.ErrorType, fin.ErrorMessage, eventID, string(model.EventStatusStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish event %s", eventID)
	}
	return checkRowsAffected(res, "event", eventID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, step_order, event_type, status, started_at, completed_at, duration_ms, input_payload, output_payload, error_type, error_message, metadata
		 FROM events WHERE run_id = ? ORDER BY step_order`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var status string
		var completedAt sql.NullTime
		var durationMS sql.NullInt64
		var input, output, metadata sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.StepOrder, &ev.EventType, &status,
			&ev.StartedAt, &completedAt, &durationMS, &input, &output,
			&ev.ErrorType, &ev.ErrorMessage, &metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ev.Status = model.EventStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			ev.CompletedAt = &t
		}
		ev.DurationMS = durationMS.Int64
		ev.InputPayload = rawFromNull(input)
		ev.OutputPayload = rawFromNull(output)
		ev.Metadata = rawFromNull(metadata)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

// -- helpers --

var errNoRow = eris.New("no row")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*model.InterviewRound, error) {
	var r model.InterviewRound
	var scheduledAt, decidedAt sql.NullTime
	err := row.Scan(&r.ID, &r.ApplicationID, &r.Stage, &r.StageName, &scheduledAt,
		&r.DurationMinutes, &r.InterviewerName, &r.VideoLink, &r.Result, &decidedAt,
		&r.SourceEmailID, &r.Position, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNoRow, "sqlite: round not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan round")
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

func scanRun(row rowScanner) (*model.Run, error) {
	var r model.Run
	var trigger, status string
	var completedAt sql.NullTime
	var durationMS sql.NullInt64
	var metadata sql.NullString
	err := row.Scan(&r.ID, &r.SyncedEmailID, &r.UserID, &trigger, &r.Mode, &status,
		&r.StartedAt, &completedAt, &durationMS, &metadata)
	if err == sql.ErrNoRows {
		return nil, eris.New("sqlite: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Trigger = model.Trigger(trigger)
	r.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.DurationMS = durationMS.Int64
	r.Metadata = rawFromNull(metadata)
	return &r, nil
}

func scanRunFromRows(rows *sql.Rows) (*model.Run, error) {
	return scanRun(rows)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s %s not found", entity, id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
