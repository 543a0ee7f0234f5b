package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

const userColumns = "id, uuid, first_name, last_name, email, password_hash, role, status, profile_image, phone_number, last_login, created_at, updated_at"

var userList = listSpec{
	table:   "users",
	alias:   "u",
	columns: prefix("u", userColumns),
	sorts: map[string]string{
		"id":        "id",
		"firstName": "first_name",
		"lastName":  "last_name",
		"email":     "email",
		"role":      "role",
		"createdAt": "created_at",
	},
	defaultSort: "id",
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.UUID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.ProfileImage, &u.PhoneNumber, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (d *DB) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return u, fmt.Errorf("get user %d: %w", id, mapErr(err))
	}
	return u, nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email))
	if err != nil {
		return u, fmt.Errorf("get user by email: %w", mapErr(err))
	}
	return u, nil
}

func (d *DB) ListUsers(ctx context.Context, f models.UserFilter, opts models.ListOptions) (models.Page[models.User], error) {
	var w where
	if f.Role != nil {
		w.add("u.role = ?", string(*f.Role))
	}
	if f.Status != nil {
		w.add("u.status = ?", string(*f.Status))
	}
	if f.Search != "" {
		s := like(f.Search)
		w.add("(u.first_name ILIKE ? OR u.last_name ILIKE ? OR u.email ILIKE ?)", s, s, s)
	}
	p, err := listPage(ctx, d.pool, userList, &w, opts, scanUser)
	return p, mapErr(err)
}

func (d *DB) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	created, err := scanUser(d.pool.QueryRow(ctx, `
		INSERT INTO users (uuid, first_name, last_name, email, password_hash, role, status, profile_image, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+userColumns,
		u.UUID, u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role), string(u.Status), u.ProfileImage, u.PhoneNumber))
	if err != nil {
		return created, fmt.Errorf("create user: %w", mapErr(err))
	}
	return created, nil
}

// UpdateUser writes every mutable column of u.
func (d *DB) UpdateUser(ctx context.Context, u models.User) (models.User, error) {
	updated, err := scanUser(d.pool.QueryRow(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, email = $4, password_hash = $5, role = $6, status = $7,
			profile_image = $8, phone_number = $9, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role), string(u.Status), u.ProfileImage, u.PhoneNumber))
	if err != nil {
		return updated, fmt.Errorf("update user %d: %w", u.ID, mapErr(err))
	}
	return updated, nil
}

func (d *DB) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := d.pool.Exec(ctx, "UPDATE users SET last_login = $2 WHERE id = $1", id, at)
	return mapErr(err)
}

func (d *DB) DeleteUser(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete user %d: %w", id, ErrNotFound)
	}
	return nil
}

// UsersInGrade lists teachers or students linked to a grade.
func (d *DB) UsersInGrade(ctx context.Context, gradeID int64, role models.Role) ([]models.User, error) {
	table, col := "student_grades", "student_id"
	if role == models.RoleTeacher {
		table, col = "teacher_grades", "teacher_id"
	}
	query := fmt.Sprintf(`SELECT %s FROM users u JOIN %s l ON l.%s = u.id WHERE l.grade_id = $1 ORDER BY u.last_name, u.id`,
		prefix("u", userColumns), table, col)
	users, err := collect(ctx, d.pool, query, scanUser, gradeID)
	return users, mapErr(err)
}

// TeachersOfSubject lists teachers assigned to a subject.
func (d *DB) TeachersOfSubject(ctx context.Context, subjectID int64) ([]models.User, error) {
	query := `SELECT ` + prefix("u", userColumns) + ` FROM users u
		JOIN teacher_subjects ts ON ts.teacher_id = u.id
		WHERE ts.subject_id = $1 ORDER BY u.last_name, u.id`
	users, err := collect(ctx, d.pool, query, scanUser, subjectID)
	return users, mapErr(err)
}
