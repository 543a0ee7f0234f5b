// Package graph exposes the exam platform over GraphQL. Every root field
// returns a union of its payload and Error, so expected failures travel as
// data instead of in the top-level errors list.
package graph

import (
	"context"
	_ "embed"
	"strconv"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/auth"
	"mcsh-server/directory"
	"mcsh-server/exam"
	"mcsh-server/models"
	"mcsh-server/utils"
)

//go:embed schema.graphql
var schemaSDL string

const maxQueryDepth = 12

// Resolver is the root for both Query and Mutation.
type Resolver struct {
	exams *exam.Service
	dir   *directory.Service
	log   *zap.Logger
}

func NewResolver(exams *exam.Service, dir *directory.Service, log *zap.Logger) *Resolver {
	return &Resolver{exams: exams, dir: dir, log: log.Named("graphql")}
}

// NewSchema parses the schema against r. It panics when a resolver does
// not match the schema.
func NewSchema(r *Resolver) *graphql.Schema {
	return graphql.MustParseSchema(schemaSDL, r, graphql.MaxDepth(maxQueryDepth))
}

func caller(ctx context.Context) models.Caller { return auth.CallerFrom(ctx) }

// outcome carries the Error arm of a result union.
type outcome struct {
	err *errorResolver
}

func (o outcome) ToError() (*errorResolver, bool) { return o.err, o.err != nil }

// fail turns err into the Error arm. Internal failures are logged here since
// the client only sees a generic message.
func (r *Resolver) fail(ctx context.Context, op string, err error) outcome {
	e := apperr.As(err)
	if e.Code == apperr.Internal {
		c := caller(ctx)
		r.log.Error("operation failed",
			zap.String("operation", op),
			zap.Int64("caller_id", c.ID),
			zap.String("caller_role", string(c.Role)),
			zap.Error(err))
	}
	return outcome{err: &errorResolver{e: e}}
}

type errorResolver struct {
	e *apperr.Error
}

func (r *errorResolver) Code() string    { return string(r.e.Code) }
func (r *errorResolver) Message() string { return r.e.Message }

func (r *errorResolver) Path() *[]string {
	if len(r.e.Path) == 0 {
		return nil
	}
	return &r.e.Path
}

type operationSuccess struct {
	message string
}

func (*operationSuccess) Success() bool     { return true }
func (o *operationSuccess) Message() string { return o.message }

type operationResult struct {
	outcome
	ok *operationSuccess
}

func (r *operationResult) ToOperationSuccess() (*operationSuccess, bool) { return r.ok, r.ok != nil }

func (r *Resolver) operation(ctx context.Context, op string, err error, message string) *operationResult {
	if err != nil {
		return &operationResult{outcome: r.fail(ctx, op, err)}
	}
	return &operationResult{ok: &operationSuccess{message: message}}
}

func gqlID(id int64) graphql.ID { return graphql.ID(strconv.FormatInt(id, 10)) }

func parseID(id graphql.ID, path ...string) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, apperr.New(apperr.Validation, "Invalid ID %q", string(id)).WithPath(path...)
	}
	return n, nil
}

func parseOptID(id *graphql.ID, path ...string) (*int64, error) {
	if id == nil {
		return nil, nil
	}
	n, err := parseID(*id, path...)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseIDs(ids []graphql.ID, path ...string) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := parseID(id, path...)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

type pageInput struct {
	First *int32
	After *string
}

type sortInput struct {
	Field     string
	Direction *string
}

func listOptions(op string, sort *sortInput, page *pageInput) (models.ListOptions, error) {
	var opts models.ListOptions
	if sort != nil {
		opts.SortField = sort.Field
		opts.Descending = utils.Deref(sort.Direction) == "DESC"
	}
	if page == nil {
		return opts, nil
	}
	if page.First != nil {
		if *page.First < 0 {
			return opts, apperr.New(apperr.Validation, "first must not be negative").WithPath(op, "page", "first")
		}
		opts.First = int(*page.First)
	}
	if page.After != nil {
		id, err := utils.DecodeCursor(*page.After)
		if err != nil {
			return opts, apperr.Wrap(apperr.Validation, err, "Invalid cursor").WithPath(op, "page", "after")
		}
		opts.After = &id
	}
	return opts, nil
}

func gqlTime(t time.Time) graphql.Time { return graphql.Time{Time: t} }

func optTime(t *time.Time) *graphql.Time {
	if t == nil {
		return nil
	}
	return &graphql.Time{Time: *t}
}

func fromOptTime(t *graphql.Time) *time.Time {
	if t == nil {
		return nil
	}
	return &t.Time
}

func optInt32(n *int) *int32 {
	if n == nil {
		return nil
	}
	v := int32(*n)
	return &v
}

func fromOptInt32(n *int32) *int {
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}

// enumPtr converts an optional enum argument into its domain type.
func enumPtr[T ~string](s *string) *T {
	if s == nil {
		return nil
	}
	v := T(*s)
	return &v
}

func enumOut[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

// hidden drops lookups the caller may not see, so an optional relation
// resolves to null instead of failing the whole object.
func hidden(err error) error {
	if apperr.Is(err, apperr.Forbidden) || apperr.Is(err, apperr.NotFound) {
		return nil
	}
	return err
}
