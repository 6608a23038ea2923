package models

import "fmt"

// Task - плоское представление задания для каталога (YAML) и JSON.
// CorrectAnswer - строка для вариантов с выбором и bool для TRUE_FALSE.
type Task struct {
	ID            string   `json:"id" yaml:"id"`
	Type          Kind     `json:"type" yaml:"type"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options,omitempty" yaml:"options,omitempty"`
	Words         []string `json:"words,omitempty" yaml:"words,omitempty"`
	Pairs         []Pair   `json:"pairs,omitempty" yaml:"pairs,omitempty"`
	CorrectAnswer any      `json:"correctAnswer,omitempty" yaml:"correct_answer,omitempty"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Exercise превращает запись каталога в типизированное задание.
func (t Task) Exercise() (Exercise, error) {
	base := Base{ID: t.ID, Question: t.Question}

	switch t.Type {
	case KindTrueFalse:
		v, ok := t.CorrectAnswer.(bool)
		if !ok {
			return nil, fmt.Errorf("%w %s: TRUE_FALSE needs a boolean correct answer, got %T", ErrInvalidExercise, t.ID, t.CorrectAnswer)
		}
		return TrueFalse{Base: base, CorrectAnswer: v, Explanation: t.Explanation}, nil
	case KindMatchPairs:
		return MatchPairs{Base: base, Pairs: t.Pairs}, nil
	}

	answer, ok := t.CorrectAnswer.(string)
	if !ok {
		return nil, fmt.Errorf("%w %s: %s needs a string correct answer, got %T", ErrInvalidExercise, t.ID, t.Type, t.CorrectAnswer)
	}
	switch t.Type {
	case KindMultipleChoice:
		return MultipleChoice{Base: base, Options: t.Options, CorrectAnswer: answer}, nil
	case KindSentenceBuilder:
		return SentenceBuilder{Base: base, Words: t.Words, CorrectAnswer: answer}, nil
	case KindOddOneOut:
		return OddOneOut{Base: base, Options: t.Options, CorrectAnswer: answer, Explanation: t.Explanation}, nil
	case KindDialogueCompletion:
		return DialogueCompletion{Base: base, Options: t.Options, CorrectAnswer: answer}, nil
	}
	return nil, fmt.Errorf("%w %s: unknown type %q", ErrInvalidExercise, t.ID, t.Type)
}

// TaskOf - обратное преобразование, используется при выгрузке каталога.
func TaskOf(ex Exercise) Task {
	t := Task{ID: ex.ExerciseID(), Type: ex.Kind(), Question: ex.Prompt()}
	switch e := ex.(type) {
	case MultipleChoice:
		t.Options, t.CorrectAnswer = e.Options, e.CorrectAnswer
	case SentenceBuilder:
		t.Words, t.CorrectAnswer = e.Words, e.CorrectAnswer
	case TrueFalse:
		t.CorrectAnswer, t.Explanation = e.CorrectAnswer, e.Explanation
	case OddOneOut:
		t.Options, t.CorrectAnswer, t.Explanation = e.Options, e.CorrectAnswer, e.Explanation
	case MatchPairs:
		t.Pairs = e.Pairs
	case DialogueCompletion:
		t.Options, t.CorrectAnswer = e.Options, e.CorrectAnswer
	}
	return t
}
