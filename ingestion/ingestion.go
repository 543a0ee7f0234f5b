// Package ingestion imports exams authored as YAML bundles.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/exam"
	"mcsh-server/models"
	"mcsh-server/policy"
	"mcsh-server/utils"
)

const sourceName = "ingestion"

// Store is the persistence an import needs.
type Store interface {
	GetSubjectByCode(ctx context.Context, code string) (models.Subject, error)
	GetGradeByName(ctx context.Context, name string) (models.Grade, error)
	CreateExamWithQuestions(ctx context.Context, e models.Exam, qs []models.Question) (models.Exam, error)
	LogError(ctx context.Context, e db.ErrorLogEntry)
	LogAdminEvent(ctx context.Context, actor, action, target, notes string)
}

// Bundle is the YAML layout of one exam and its questions.
type Bundle struct {
	Subject          string           `yaml:"subject"`
	Grade            string           `yaml:"grade"`
	Title            string           `yaml:"title"`
	Description      *string          `yaml:"description"`
	Instructions     *string          `yaml:"instructions"`
	Duration         int              `yaml:"duration"`
	Passmark         *float64         `yaml:"passmark"`
	ShuffleQuestions bool             `yaml:"shuffle_questions"`
	AllowReview      *bool            `yaml:"allow_review"`
	ShowResults      *bool            `yaml:"show_results"`
	StartDate        *time.Time       `yaml:"start_date"`
	EndDate          *time.Time       `yaml:"end_date"`
	Questions        []BundleQuestion `yaml:"questions"`
}

type BundleQuestion struct {
	Text       string   `yaml:"text"`
	Type       string   `yaml:"type"`
	Options    []string `yaml:"options"`
	Answer     *string  `yaml:"answer"`
	Points     *float64 `yaml:"points"`
	Difficulty *string  `yaml:"difficulty"`
	Tags       []string `yaml:"tags"`
	Feedback   *string  `yaml:"feedback"`
	Image      *string  `yaml:"image"`

	line int
}

// Problem is one validation failure found in a bundle.
type Problem struct {
	Line         int    `json:"line"`
	Field        string `json:"field"`
	Message      string `json:"message"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// ValidationError lists every problem that kept a bundle from importing.
type ValidationError struct {
	File     string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d validation problem(s), first: line %d: %s",
		e.File, len(e.Problems), e.Problems[0].Line, e.Problems[0].Message)
}

type Importer struct {
	store  Store
	policy *policy.Evaluator
	log    *zap.Logger
}

func NewImporter(store Store, pol *policy.Evaluator, log *zap.Logger) *Importer {
	return &Importer{store: store, policy: pol, log: log.Named("ingestion")}
}

// Import reads one bundle from r and stores it as a DRAFT exam created by
// c. Nothing is stored unless every check passes; each failure is written
// to the error log and returned in a *ValidationError.
func (im *Importer) Import(ctx context.Context, c models.Caller, file string, r io.Reader) (models.Exam, error) {
	b, err := Decode(r)
	if err != nil {
		im.store.LogError(ctx, db.ErrorLogEntry{
			Source: sourceName, FilePath: file, Message: "Failed to parse bundle",
			SuggestedFix: fmt.Sprintf("Ensure YAML format is correct: %v", err),
		})
		return models.Exam{}, apperr.Wrap(apperr.Validation, err, "Bundle %s is not valid YAML", file)
	}

	e, qs, problems := im.build(ctx, b)
	if len(problems) > 0 {
		for _, p := range problems {
			im.store.LogError(ctx, db.ErrorLogEntry{
				Source: sourceName, FilePath: file, LineNumber: p.Line,
				FieldName: p.Field, Message: p.Message, SuggestedFix: p.SuggestedFix,
			})
		}
		im.log.Warn("bundle rejected", zap.String("file", file), zap.Int("problems", len(problems)))
		return models.Exam{}, &ValidationError{File: file, Problems: problems}
	}

	res := policy.Resource{Kind: policy.KindExam, SubjectID: e.SubjectID, GradeID: e.GradeID}
	if err := im.policy.Authorize(ctx, c, policy.Create, res); err != nil {
		return models.Exam{}, err
	}
	e.CreatedByID = c.ID

	created, err := im.store.CreateExamWithQuestions(ctx, e, qs)
	if err != nil {
		im.store.LogError(ctx, db.ErrorLogEntry{
			Source: sourceName, FilePath: file, Message: "Failed to store exam",
			SuggestedFix: fmt.Sprintf("Database error: %v", err),
		})
		return models.Exam{}, db.AppError(err, "Exam", nil)
	}
	im.store.LogAdminEvent(ctx, fmt.Sprintf("%s#%d", strings.ToLower(string(c.Role)), c.ID), "import_exam", b.Subject,
		fmt.Sprintf("Imported %q with %d questions from %s", created.Title, len(qs), file))
	im.log.Info("bundle imported", zap.String("file", file), zap.Int64("exam", created.ID), zap.Int("questions", len(qs)))
	return created, nil
}

// Decode parses a bundle and records the line each question starts on.
func Decode(r io.Reader) (Bundle, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Bundle{}, errors.New("empty document")
		}
		return Bundle{}, err
	}
	var b Bundle
	if err := doc.Decode(&b); err != nil {
		return Bundle{}, err
	}
	if seq := mappingValue(&doc, "questions"); seq != nil && seq.Kind == yaml.SequenceNode {
		for i, n := range seq.Content {
			if i < len(b.Questions) {
				b.Questions[i].line = n.Line
			}
		}
	}
	return b, nil
}

func mappingValue(doc *yaml.Node, key string) *yaml.Node {
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func (im *Importer) build(ctx context.Context, b Bundle) (models.Exam, []models.Question, []Problem) {
	var problems []Problem
	add := func(line int, field, msg, fix string) {
		problems = append(problems, Problem{Line: line, Field: field, Message: msg, SuggestedFix: fix})
	}

	e := models.Exam{
		Title:            strings.TrimSpace(b.Title),
		Description:      b.Description,
		Instructions:     b.Instructions,
		Duration:         b.Duration,
		Passmark:         b.Passmark,
		ShuffleQuestions: b.ShuffleQuestions,
		AllowReview:      b.AllowReview == nil || *b.AllowReview,
		ShowResults:      b.ShowResults == nil || *b.ShowResults,
		StartDate:        b.StartDate,
		EndDate:          b.EndDate,
		Status:           models.ExamDraft,
	}
	if err := exam.ValidateExam(e); err != nil {
		add(0, strings.Join(err.Path, "."), err.Message, "")
	}

	sub, err := im.store.GetSubjectByCode(ctx, b.Subject)
	switch {
	case errors.Is(err, db.ErrNotFound):
		add(0, "subject", fmt.Sprintf("Subject code %q does not exist", b.Subject), "Use the code of an existing subject")
	case err != nil:
		add(0, "subject", fmt.Sprintf("Subject lookup failed: %v", err), "")
	}
	g, err := im.store.GetGradeByName(ctx, b.Grade)
	switch {
	case errors.Is(err, db.ErrNotFound):
		add(0, "grade", fmt.Sprintf("Grade %q does not exist", b.Grade), "Use the name of an existing grade")
	case err != nil:
		add(0, "grade", fmt.Sprintf("Grade lookup failed: %v", err), "")
	}
	if sub.ID != 0 && g.ID != 0 && sub.GradeID != g.ID {
		add(0, "grade", fmt.Sprintf("Subject %s does not belong to grade %q", sub.Code, g.Name), "")
	}
	e.SubjectID, e.GradeID = sub.ID, g.ID

	if len(b.Questions) == 0 {
		add(0, "questions", "Bundle has no questions", "Add at least one entry under questions")
	}
	texts := make(map[string]int)
	qs := make([]models.Question, 0, len(b.Questions))
	for i, bq := range b.Questions {
		q, fix := bq.question(i + 1)
		if prev, dup := texts[q.Text]; dup && q.Text != "" {
			add(bq.line, "text", "Duplicate question text", fmt.Sprintf("Same text as the question on line %d", prev))
		}
		texts[q.Text] = bq.line
		if err := exam.ValidateQuestion(&q); err != nil {
			add(bq.line, strings.Join(err.Path, "."), err.Message, fix)
			continue
		}
		qs = append(qs, q)
	}
	return e, qs, problems
}

var (
	questionTypes = []string{string(models.MultipleChoice), string(models.TrueFalse), string(models.ShortAnswer), string(models.Essay)}
	difficulties  = []string{string(models.DifficultyEasy), string(models.DifficultyMedium), string(models.DifficultyHard)}
)

// question converts bq and returns a suggested fix for misspelt enum values.
func (bq BundleQuestion) question(number int) (models.Question, string) {
	q := models.Question{
		QuestionNumber: number,
		Text:           strings.TrimSpace(bq.Text),
		Type:           models.QuestionType(strings.ToUpper(strings.TrimSpace(bq.Type))),
		Options:        bq.Options,
		CorrectAnswer:  bq.Answer,
		Points:         1,
		Tags:           bq.Tags,
		Feedback:       bq.Feedback,
		Image:          bq.Image,
	}
	if bq.Points != nil {
		q.Points = *bq.Points
	}
	var fix string
	if !q.Type.Valid() {
		if c := utils.Closest(bq.Type, questionTypes, 4); c != "" {
			fix = fmt.Sprintf("Did you mean %s?", c)
		} else {
			fix = "Must be one of " + strings.Join(questionTypes, ", ")
		}
	}
	if bq.Difficulty != nil {
		d := models.Difficulty(strings.ToUpper(strings.TrimSpace(*bq.Difficulty)))
		q.DifficultyLevel = &d
		if !d.Valid() && fix == "" {
			if c := utils.Closest(*bq.Difficulty, difficulties, 3); c != "" {
				fix = fmt.Sprintf("Did you mean %s?", c)
			}
		}
	}
	return q, fix
}
