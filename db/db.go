package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mcsh-server/apperr"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("duplicate key")
	ErrForeignKey  = errors.New("foreign key violation")
	ErrStale       = errors.New("record changed concurrently")
	ErrInvalidSort = errors.New("invalid sort field")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the PostgreSQL-backed store for every service.
type DB struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// InitDB initializes the PostgreSQL database connection pool
func InitDB(ctx context.Context, connString string, log *zap.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to PostgreSQL")
	return &DB{pool: pool, log: log}, nil
}

func (d *DB) Close() { d.pool.Close() }

// Ping checks the connection for health probes.
func (d *DB) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

// CreateSchema sets up the necessary tables. Every statement is idempotent.
func (d *DB) CreateSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	first_name VARCHAR(100) NOT NULL,
	last_name VARCHAR(100) NOT NULL,
	email VARCHAR(255) NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role VARCHAR(20) NOT NULL CHECK (role IN ('ADMIN', 'TEACHER', 'STUDENT')),
	status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'INACTIVE', 'SUSPENDED')),
	profile_image TEXT,
	phone_number VARCHAR(50),
	last_login TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS grades (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	name VARCHAR(100) NOT NULL UNIQUE,
	description TEXT,
	academic_year VARCHAR(20) NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS subjects (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	name VARCHAR(255) NOT NULL,
	code VARCHAR(50) NOT NULL UNIQUE,
	description TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	grade_id BIGINT NOT NULL REFERENCES grades(id),
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- assignment rows vanish with the user but block deleting a grade or subject
CREATE TABLE IF NOT EXISTS teacher_subjects (
	teacher_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	subject_id BIGINT NOT NULL REFERENCES subjects(id),
	PRIMARY KEY (teacher_id, subject_id)
);

CREATE TABLE IF NOT EXISTS teacher_grades (
	teacher_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	grade_id BIGINT NOT NULL REFERENCES grades(id),
	PRIMARY KEY (teacher_id, grade_id)
);

CREATE TABLE IF NOT EXISTS student_grades (
	student_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	grade_id BIGINT NOT NULL REFERENCES grades(id),
	PRIMARY KEY (student_id, grade_id)
);

CREATE TABLE IF NOT EXISTS exams (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	title VARCHAR(255) NOT NULL,
	description TEXT,
	instructions TEXT,
	subject_id BIGINT NOT NULL REFERENCES subjects(id),
	grade_id BIGINT NOT NULL REFERENCES grades(id),
	created_by_id BIGINT NOT NULL REFERENCES users(id),
	duration INT NOT NULL CHECK (duration > 0),
	passmark DOUBLE PRECISION CHECK (passmark >= 0 AND passmark <= 100),
	shuffle_questions BOOLEAN NOT NULL DEFAULT FALSE,
	allow_review BOOLEAN NOT NULL DEFAULT TRUE,
	show_results BOOLEAN NOT NULL DEFAULT TRUE,
	start_date TIMESTAMP WITH TIME ZONE,
	end_date TIMESTAMP WITH TIME ZONE,
	status VARCHAR(20) NOT NULL DEFAULT 'DRAFT' CHECK (status IN ('DRAFT', 'PUBLISHED', 'ARCHIVED')),
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS questions (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	question_number INT NOT NULL,
	text TEXT NOT NULL,
	type VARCHAR(20) NOT NULL CHECK (type IN ('MULTIPLE_CHOICE', 'TRUE_FALSE', 'SHORT_ANSWER', 'ESSAY')),
	options TEXT[] NOT NULL DEFAULT '{}',
	correct_answer TEXT,
	points DOUBLE PRECISION NOT NULL DEFAULT 1 CHECK (points >= 0),
	difficulty_level VARCHAR(10) CHECK (difficulty_level IN ('EASY', 'MEDIUM', 'HARD')),
	tags TEXT[] NOT NULL DEFAULT '{}',
	feedback TEXT,
	image TEXT,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (exam_id, question_number)
);

CREATE TABLE IF NOT EXISTS student_exams (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	exam_id BIGINT NOT NULL REFERENCES exams(id),
	student_id BIGINT NOT NULL REFERENCES users(id),
	status VARCHAR(20) NOT NULL DEFAULT 'IN_PROGRESS' CHECK (status IN ('IN_PROGRESS', 'COMPLETED', 'GRADED')),
	start_time TIMESTAMP WITH TIME ZONE NOT NULL,
	end_time TIMESTAMP WITH TIME ZONE,
	score DOUBLE PRECISION,
	is_passed BOOLEAN,
	time_spent INT,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (exam_id, student_id)
);

CREATE TABLE IF NOT EXISTS student_answers (
	id BIGSERIAL PRIMARY KEY,
	student_exam_id BIGINT NOT NULL REFERENCES student_exams(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL REFERENCES questions(id),
	selected_answer TEXT,
	is_correct BOOLEAN,
	is_marked BOOLEAN NOT NULL DEFAULT FALSE,
	time_taken INT,
	answered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (student_exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id BIGSERIAL PRIMARY KEY,
	recipient_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title VARCHAR(255) NOT NULL,
	message TEXT NOT NULL,
	type VARCHAR(50) NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, is_read);
CREATE INDEX IF NOT EXISTS idx_exams_subject_grade ON exams (subject_id, grade_id);

CREATE TABLE IF NOT EXISTS error_logs (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	source VARCHAR(50) NOT NULL,
	file_path TEXT,
	line_number INT,
	field_name TEXT,
	error_message TEXT NOT NULL,
	suggested_fix TEXT
);

CREATE TABLE IF NOT EXISTS admin_events (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
	action VARCHAR(100) NOT NULL,
	actor VARCHAR(255) NOT NULL,
	target TEXT,
	notes TEXT
);
`

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.ConstraintName)
		}
	}
	return err
}

// LogError adds an entry to the error_logs table
func (d *DB) LogError(ctx context.Context, e ErrorLogEntry) {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO error_logs (source, file_path, line_number, field_name, error_message, suggested_fix)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Source, e.FilePath, e.LineNumber, e.FieldName, e.Message, e.SuggestedFix)
	if err != nil {
		d.log.Error("failed to log error to database", zap.Error(err), zap.String("original", e.Message))
	}
}

// ErrorLogEntry is one row for LogError.
type ErrorLogEntry struct {
	Source       string
	FilePath     string
	LineNumber   int
	FieldName    string
	Message      string
	SuggestedFix string
}

// LogAdminEvent adds an entry to the admin_events table
func (d *DB) LogAdminEvent(ctx context.Context, actor, action, target, notes string) {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO admin_events (action, actor, target, notes)
		VALUES ($1, $2, $3, $4)
	`, action, actor, target, notes)
	if err != nil {
		d.log.Error("failed to log admin event to database",
			zap.Error(err), zap.String("action", action), zap.String("actor", actor), zap.String("target", target))
	}
}

// AppError converts a store error into the client-facing error for an
// operation on kind with identifier id.
func AppError(err error, kind string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.NotFound, err, "%s with ID %v not found", kind, id)
	case errors.Is(err, ErrDuplicate):
		return apperr.Wrap(apperr.AlreadyExists, err, "%s already exists", kind)
	case errors.Is(err, ErrForeignKey):
		return apperr.Wrap(apperr.BusinessRule, err, "%s is still referenced by other records", kind)
	case errors.Is(err, ErrInvalidSort):
		return apperr.Wrap(apperr.Validation, err, "Unsupported sort field for %s", kind)
	}
	return apperr.As(err)
}
