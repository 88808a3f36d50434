// Package quiz generates benefit quizzes with the same structured reasoning
// calls the clarification dialogue uses: one call for the topics, then one
// call per topic.
package quiz

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"questmaster/reasoning"
)

//go:embed prompts.yaml
var promptsYAML []byte

const defaultParallel = 4

var TopicsSchema = reasoning.Schema{
	Name:        "quiz_topics",
	Description: "Employee benefit topics to generate quiz questions on.",
	Fields: []reasoning.Field{
		{Name: "topics", Type: reasoning.StringList, Description: "List of employee benefit topics to generate quiz questions on."},
	},
}

var QuestionSchema = reasoning.Schema{
	Name:        "quiz_question",
	Description: "One multiple choice question with four options.",
	Fields: []reasoning.Field{
		{Name: "question", Type: reasoning.String, Description: "Quiz question testing the employee's understanding of their benefits."},
		{Name: "option_1", Type: reasoning.String, Description: "1st option for the multiple choice question."},
		{Name: "option_2", Type: reasoning.String, Description: "2nd option for the multiple choice question."},
		{Name: "option_3", Type: reasoning.String, Description: "3rd option for the multiple choice question."},
		{Name: "option_4", Type: reasoning.String, Description: "4th option for the multiple choice question."},
		{Name: "correct_answer", Type: reasoning.String, Description: "The number of the correct option: 1, 2, 3 or 4."},
		{Name: "explanation", Type: reasoning.String, Description: "Why the correct option is right."},
	},
}

type topicsOutput struct {
	Topics []string `json:"topics"`
}

type questionOutput struct {
	Question      string `json:"question"`
	Option1       string `json:"option_1"`
	Option2       string `json:"option_2"`
	Option3       string `json:"option_3"`
	Option4       string `json:"option_4"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation"`
}

type Question struct {
	Topic       string    `json:"topic"`
	Question    string    `json:"question"`
	Options     [4]string `json:"options"`
	Answer      int       `json:"answer"`
	Explanation string    `json:"explanation"`
}

type Quiz struct {
	Org       string     `json:"org"`
	Questions []Question `json:"questions"`
}

type Generator struct {
	adapter  *reasoning.Adapter
	topics   *reasoning.Template
	question *reasoning.Template
	parallel int
}

type Option func(*Generator)

// WithParallel bounds the number of question calls in flight.
func WithParallel(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.parallel = n
		}
	}
}

func NewGenerator(adapter *reasoning.Adapter, opts ...Option) (*Generator, error) {
	templates, err := reasoning.LoadTemplates(promptsYAML)
	if err != nil {
		return nil, err
	}
	required, err := templates.Require("topics", "question")
	if err != nil {
		return nil, err
	}
	g := &Generator{
		adapter:  adapter,
		topics:   required[0],
		question: required[1],
		parallel: defaultParallel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type bindings struct {
	Org     string
	Topic   string
	Details []string
}

// Topics asks for the quiz topics of org. details are optional excerpts from
// company documents added to the prompt.
func (g *Generator) Topics(ctx context.Context, org string, details []string) ([]string, error) {
	out, err := reasoning.InvokeTemplate[topicsOutput](ctx, g.adapter, g.topics, TopicsSchema, bindings{Org: org, Details: details})
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(out.Topics))
	seen := map[string]bool{}
	for _, topic := range out.Topics {
		topic = strings.TrimSpace(topic)
		if topic == "" || seen[strings.ToLower(topic)] {
			continue
		}
		seen[strings.ToLower(topic)] = true
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("quiz topics for %s: no topics", org)
	}
	return topics, nil
}

func (g *Generator) Question(ctx context.Context, org, topic string, details []string) (*Question, error) {
	out, err := reasoning.InvokeTemplate[questionOutput](ctx, g.adapter, g.question, QuestionSchema,
		bindings{Org: org, Topic: topic, Details: details})
	if err != nil {
		return nil, err
	}
	answer, err := strconv.Atoi(strings.TrimSpace(out.CorrectAnswer))
	if err != nil || answer < 1 || answer > 4 {
		return nil, &reasoning.Error{
			Kind:   reasoning.KindSchemaInvalid,
			Schema: QuestionSchema.Name,
			Err:    fmt.Errorf("%w: question on %s: correct answer %q is not 1 to 4", reasoning.ErrSchemaInvalid, topic, out.CorrectAnswer),
		}
	}
	return &Question{
		Topic:       topic,
		Question:    strings.TrimSpace(out.Question),
		Options:     [4]string{out.Option1, out.Option2, out.Option3, out.Option4},
		Answer:      answer,
		Explanation: strings.TrimSpace(out.Explanation),
	}, nil
}

// Generate asks for the topics, then for one question per topic in parallel.
// Questions keep the topic order. The first failure cancels the rest.
func (g *Generator) Generate(ctx context.Context, org string, details []string) (*Quiz, error) {
	topics, err := g.Topics(ctx, org, details)
	if err != nil {
		return nil, err
	}

	questions := make([]Question, len(topics))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.parallel)
	for i, topic := range topics {
		group.Go(func() error {
			q, err := g.Question(groupCtx, org, topic, details)
			if err != nil {
				return fmt.Errorf("question on %s: %w", topic, err)
			}
			questions[i] = *q
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	log.Info().Str("org", org).Int("questions", len(questions)).Msg("quiz generated")
	return &Quiz{Org: org, Questions: questions}, nil
}
