package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind - тип задания (тег варианта).
type Kind string

const (
	KindMultipleChoice     Kind = "MULTIPLE_CHOICE"
	KindSentenceBuilder    Kind = "SENTENCE_BUILDER"
	KindTrueFalse          Kind = "TRUE_FALSE"
	KindOddOneOut          Kind = "ODD_ONE_OUT"
	KindMatchPairs         Kind = "MATCH_PAIRS"
	KindDialogueCompletion Kind = "DIALOGUE_COMPLETION"
)

// Exercise - одно задание урока. Реализуется только типами этого пакета.
type Exercise interface {
	ExerciseID() string
	Prompt() string
	Kind() Kind
	exercise()
}

// Base - общие поля всех заданий.
type Base struct {
	ID       string
	Question string
}

func (b Base) ExerciseID() string { return b.ID }
func (b Base) Prompt() string     { return b.Question }
func (Base) exercise()            {}

type MultipleChoice struct {
	Base
	Options       []string
	CorrectAnswer string
}

// SentenceBuilder: CorrectAnswer - слова из Words в правильном порядке через пробел.
type SentenceBuilder struct {
	Base
	Words         []string
	CorrectAnswer string
}

type TrueFalse struct {
	Base
	CorrectAnswer bool
	Explanation   string
}

type OddOneOut struct {
	Base
	Options       []string
	CorrectAnswer string
	Explanation   string
}

// Pair - одна пара "фраза - перевод".
type Pair struct {
	Prompt string `json:"prompt" yaml:"prompt"`
	Answer string `json:"answer" yaml:"answer"`
}

type MatchPairs struct {
	Base
	Pairs []Pair
}

type DialogueCompletion struct {
	Base
	Options       []string
	CorrectAnswer string
}

func (MultipleChoice) Kind() Kind     { return KindMultipleChoice }
func (SentenceBuilder) Kind() Kind    { return KindSentenceBuilder }
func (TrueFalse) Kind() Kind          { return KindTrueFalse }
func (OddOneOut) Kind() Kind          { return KindOddOneOut }
func (MatchPairs) Kind() Kind         { return KindMatchPairs }
func (DialogueCompletion) Kind() Kind { return KindDialogueCompletion }

// Explanation возвращает пояснение к заданию, если оно есть.
func Explanation(ex Exercise) string {
	switch e := ex.(type) {
	case TrueFalse:
		return e.Explanation
	case OddOneOut:
		return e.Explanation
	}
	return ""
}

var ErrInvalidExercise = errors.New("invalid exercise")

// ValidateExercise проверяет структурные инварианты задания.
func ValidateExercise(ex Exercise) error {
	if ex == nil {
		return fmt.Errorf("%w: nil exercise", ErrInvalidExercise)
	}
	if strings.TrimSpace(ex.ExerciseID()) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidExercise)
	}

	var err error
	switch e := ex.(type) {
	case MultipleChoice:
		if len(e.Options) < 2 {
			err = errors.New("multiple choice needs at least two options")
		} else {
			err = checkOptions(e.Options, e.CorrectAnswer)
		}
	case OddOneOut:
		err = checkOptions(e.Options, e.CorrectAnswer)
	case DialogueCompletion:
		err = checkOptions(e.Options, e.CorrectAnswer)
	case SentenceBuilder:
		err = checkSentence(e.Words, e.CorrectAnswer)
	case MatchPairs:
		err = checkPairs(e.Pairs)
	case TrueFalse:
		// любое булево значение корректно
	default:
		err = fmt.Errorf("unknown exercise type %T", ex)
	}
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidExercise, ex.ExerciseID(), err)
	}
	return nil
}

func checkOptions(options []string, correct string) error {
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if _, dup := seen[o]; dup {
			return fmt.Errorf("duplicate option %q", o)
		}
		seen[o] = struct{}{}
	}
	if _, ok := seen[correct]; !ok {
		return fmt.Errorf("correct answer %q is not among options", correct)
	}
	return nil
}

func checkSentence(words []string, correct string) error {
	if len(words) == 0 {
		return errors.New("sentence builder has no words")
	}
	got := strings.Split(correct, " ")
	want := slices.Clone(words)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return fmt.Errorf("correct answer %q is not a permutation of words", correct)
	}
	return nil
}

func checkPairs(pairs []Pair) error {
	if len(pairs) == 0 {
		return errors.New("match pairs has no pairs")
	}
	prompts := make(map[string]struct{}, len(pairs))
	answers := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, dup := prompts[p.Prompt]; dup {
			return fmt.Errorf("duplicate prompt %q", p.Prompt)
		}
		if _, dup := answers[p.Answer]; dup {
			return fmt.Errorf("duplicate answer %q", p.Answer)
		}
		prompts[p.Prompt] = struct{}{}
		answers[p.Answer] = struct{}{}
	}
	return nil
}
