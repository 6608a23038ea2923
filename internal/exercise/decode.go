package exercise

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"soyle/internal/models"
)

var ErrMalformedAnswer = errors.New("malformed answer")

// mismatch - ответ, форма которого не подходит заданию. Validate всегда даёт false.
type mismatch struct{}

func (mismatch) answer() {}

// DecodeAnswer разбирает JSON-ответ клиента в форму, ожидаемую заданием.
// Ошибка возвращается только для синтаксически неверного JSON.
func DecodeAnswer(ex models.Exercise, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, fmt.Errorf("%w: not a JSON value", ErrMalformedAnswer)
	}

	switch ex.(type) {
	case models.MultipleChoice, models.OddOneOut, models.DialogueCompletion:
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return Choice(s), nil
		}
	case models.TrueFalse:
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return Flag(b), nil
		}
	case models.SentenceBuilder:
		var words []string
		if json.Unmarshal(raw, &words) == nil {
			return Words(words), nil
		}
	case models.MatchPairs:
		var pairs []models.Pair
		if json.Unmarshal(raw, &pairs) == nil && pairsComplete(pairs) {
			return Pairs(pairs), nil
		}
		var keys []string
		if json.Unmarshal(raw, &keys) == nil {
			return PairKeys(keys), nil
		}
	}
	return mismatch{}, nil
}

// pairsComplete отсекает объекты без полей вроде [{}].
func pairsComplete(pairs []models.Pair) bool {
	for _, p := range pairs {
		if p.Prompt == "" && p.Answer == "" {
			return false
		}
	}
	return true
}
