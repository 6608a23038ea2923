package models

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
)

func TestValidateExercise(t *testing.T) {
	tests := []struct {
		name    string
		ex      Exercise
		wantErr bool
	}{
		{
			name: "multiple choice ok",
			ex:   MultipleChoice{Base: Base{ID: "t1"}, Options: []string{"Сәлем", "Рахмет"}, CorrectAnswer: "Сәлем"},
		},
		{
			name:    "multiple choice single option",
			ex:      MultipleChoice{Base: Base{ID: "t1"}, Options: []string{"Сәлем"}, CorrectAnswer: "Сәлем"},
			wantErr: true,
		},
		{
			name:    "multiple choice duplicate options",
			ex:      MultipleChoice{Base: Base{ID: "t1"}, Options: []string{"Нан", "Нан"}, CorrectAnswer: "Нан"},
			wantErr: true,
		},
		{
			name:    "odd one out answer not in options",
			ex:      OddOneOut{Base: Base{ID: "t1"}, Options: []string{"Ана", "Әке"}, CorrectAnswer: "Мектеп"},
			wantErr: true,
		},
		{
			name: "sentence builder permutation",
			ex:   SentenceBuilder{Base: Base{ID: "t1"}, Words: []string{"атым", "Менің", "Айсулу."}, CorrectAnswer: "Менің атым Айсулу."},
		},
		{
			name:    "sentence builder foreign word",
			ex:      SentenceBuilder{Base: Base{ID: "t1"}, Words: []string{"Менің", "атым"}, CorrectAnswer: "Менің атым Айсулу."},
			wantErr: true,
		},
		{
			name:    "match pairs duplicate answer",
			ex:      MatchPairs{Base: Base{ID: "t1"}, Pairs: []Pair{{"Вода", "Су"}, {"Молоко", "Су"}}},
			wantErr: true,
		},
		{
			name: "match pairs same text on both sides",
			ex:   MatchPairs{Base: Base{ID: "t1"}, Pairs: []Pair{{"Сәлем!", "Сәлем!"}, {"Қалайсың?", "Жақсы"}}},
		},
		{
			name: "true false",
			ex:   TrueFalse{Base: Base{ID: "t1"}, CorrectAnswer: false},
		},
		{
			name:    "empty id",
			ex:      TrueFalse{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExercise(tt.ex)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateExercise() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidExercise) {
				t.Errorf("error %v does not wrap ErrInvalidExercise", err)
			}
		})
	}
}

func TestTask_Exercise(t *testing.T) {
	tf, err := Task{ID: "t4", Type: KindTrueFalse, CorrectAnswer: false, Explanation: "нет"}.Exercise()
	if err != nil {
		t.Fatalf("Exercise() error = %v", err)
	}
	if got, ok := tf.(TrueFalse); !ok || got.CorrectAnswer || got.Explanation != "нет" {
		t.Errorf("Exercise() = %#v", tf)
	}

	if _, err := (Task{ID: "t4", Type: KindTrueFalse, CorrectAnswer: "false"}).Exercise(); err == nil {
		t.Error("expected error for string answer on TRUE_FALSE")
	}
	if _, err := (Task{ID: "t1", Type: KindMultipleChoice, CorrectAnswer: true}).Exercise(); err == nil {
		t.Error("expected error for bool answer on MULTIPLE_CHOICE")
	}
	if _, err := (Task{ID: "t1", Type: "SPEAKING", CorrectAnswer: "x"}).Exercise(); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestTaskOf_RoundTrip(t *testing.T) {
	exercises := []Exercise{
		MultipleChoice{Base: Base{ID: "a", Question: "q"}, Options: []string{"x", "y"}, CorrectAnswer: "x"},
		SentenceBuilder{Base: Base{ID: "b"}, Words: []string{"Бұл", "менің"}, CorrectAnswer: "Бұл менің"},
		TrueFalse{Base: Base{ID: "c"}, CorrectAnswer: true, Explanation: "e"},
		OddOneOut{Base: Base{ID: "d"}, Options: []string{"x", "y"}, CorrectAnswer: "y", Explanation: "e"},
		MatchPairs{Base: Base{ID: "e"}, Pairs: []Pair{{"Вода", "Су"}}},
		DialogueCompletion{Base: Base{ID: "f"}, Options: []string{"x", "y"}, CorrectAnswer: "y"},
	}
	for _, ex := range exercises {
		back, err := TaskOf(ex).Exercise()
		if err != nil {
			t.Fatalf("%s: %v", ex.ExerciseID(), err)
		}
		if back.Kind() != ex.Kind() || back.ExerciseID() != ex.ExerciseID() || back.Prompt() != ex.Prompt() {
			t.Errorf("round trip mismatch: %#v vs %#v", back, ex)
		}
	}
}

func TestProgress_CloneIsIndependent(t *testing.T) {
	d := civil.Date{Year: 2025, Month: 3, Day: 1}
	p := Progress{XP: 10, CompletedLessons: []string{"s1-l1"}, LastCompletionDate: &d}

	c := p.Clone()
	c.CompletedLessons[0] = "other"
	c.LastCompletionDate.Day = 2

	if p.CompletedLessons[0] != "s1-l1" || p.LastCompletionDate.Day != 1 {
		t.Errorf("Clone shares memory with original: %+v", p)
	}
	if !p.HasCompleted("s1-l1") || p.HasCompleted("s1-l2") {
		t.Error("HasCompleted mismatch")
	}
	if (Progress{}).Clone().CompletedLessons == nil {
		t.Error("Clone of zero progress should have a non-nil completed list")
	}
}

func TestIdentity(t *testing.T) {
	anon := Identity{DeviceID: "dev-1"}
	user := Identity{UserID: "u-1", DeviceID: "dev-1"}
	if !anon.Anonymous() || user.Anonymous() {
		t.Fatal("Anonymous() mismatch")
	}
	if anon.Key() == user.Key() {
		t.Errorf("keys collide: %s", anon.Key())
	}
}
