// Package exercise проверяет ответы пользователя на задания урока.
// Все функции чистые: никаких побочных эффектов и паник.
package exercise

import (
	"strings"

	"soyle/internal/models"
)

// Answer - ответ пользователя. Форма зависит от типа задания.
type Answer interface{ answer() }

// Choice - выбранный вариант (MULTIPLE_CHOICE, ODD_ONE_OUT, DIALOGUE_COMPLETION).
type Choice string

// Flag - ответ на TRUE_FALSE.
type Flag bool

// Words - собранная последовательность слов (SENTENCE_BUILDER).
// Слова берутся только из задания, каждое не чаще, чем оно там встречается;
// это обеспечивает интерфейс, здесь не перепроверяется.
type Words []string

// Pairs - сопоставленные пары (MATCH_PAIRS).
type Pairs []models.Pair

// PairKeys - старый формат MATCH_PAIRS: строки "prompt-answer".
// Неоднозначен, если в тексте есть "-"; используйте Pairs.
type PairKeys []string

func (Choice) answer()   {}
func (Flag) answer()     {}
func (Words) answer()    {}
func (Pairs) answer()    {}
func (PairKeys) answer() {}

// Validate решает, верен ли ответ. Ответ неподходящей формы считается неверным.
func Validate(ex models.Exercise, a Answer) bool {
	switch e := ex.(type) {
	case models.MultipleChoice:
		return choiceEquals(a, e.CorrectAnswer)
	case models.OddOneOut:
		return choiceEquals(a, e.CorrectAnswer)
	case models.DialogueCompletion:
		return choiceEquals(a, e.CorrectAnswer)
	case models.TrueFalse:
		f, ok := a.(Flag)
		return ok && bool(f) == e.CorrectAnswer
	case models.SentenceBuilder:
		w, ok := a.(Words)
		return ok && strings.Join(w, " ") == e.CorrectAnswer
	case models.MatchPairs:
		return pairsMatch(e.Pairs, a)
	}
	return false
}

func choiceEquals(a Answer, correct string) bool {
	c, ok := a.(Choice)
	return ok && string(c) == correct
}

// PairKey строит строку "prompt-answer" старого формата.
func PairKey(p models.Pair) string { return p.Prompt + "-" + p.Answer }

func pairsMatch(expected []models.Pair, a Answer) bool {
	switch got := a.(type) {
	case Pairs:
		want := make(map[models.Pair]struct{}, len(expected))
		for _, p := range expected {
			want[p] = struct{}{}
		}
		return sameSet(want, []models.Pair(got))
	case PairKeys:
		want := make(map[string]struct{}, len(expected))
		for _, p := range expected {
			want[PairKey(p)] = struct{}{}
		}
		return sameSet(want, []string(got))
	}
	return false
}

// sameSet: множество элементов got совпадает с want (повторы в got не важны).
func sameSet[T comparable](want map[T]struct{}, got []T) bool {
	seen := make(map[T]struct{}, len(got))
	for _, g := range got {
		if _, ok := want[g]; !ok {
			return false
		}
		seen[g] = struct{}{}
	}
	return len(seen) == len(want)
}
