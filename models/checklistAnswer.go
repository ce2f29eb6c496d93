package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fieldops/workorder_backend/utils"
	"github.com/shopspring/decimal"
)

// Answer is the typed value of one checklist item. The set of
// implementations is closed; every switch over it lists all ten.
type Answer interface {
	Kind() AnswerKind
	isAnswer()
}

type BooleanAnswer struct{ Value bool }
type TextAnswer struct{ Value string }
type NumberAnswer struct{ Value decimal.Decimal }
type CurrencyAnswer struct{ Value decimal.Decimal }

// DateAnswer holds a calendar date at UTC midnight.
type DateAnswer struct{ Value time.Time }

// TimeAnswer holds a wall-clock time as "15:04".
type TimeAnswer struct{ Value string }

type SingleChoiceAnswer struct{ Option string }

// MultiChoiceAnswer lists selections in the item's option order.
type MultiChoiceAnswer struct{ Options []string }

type PhotoAnswer struct{ Uri string }

type SignatureAnswer struct {
	Uri            string
	SignerName     string
	SignerDocument string
}

func (BooleanAnswer) Kind() AnswerKind      { return AnswerKindBoolean }
func (TextAnswer) Kind() AnswerKind         { return AnswerKindText }
func (NumberAnswer) Kind() AnswerKind       { return AnswerKindNumber }
func (CurrencyAnswer) Kind() AnswerKind     { return AnswerKindCurrency }
func (DateAnswer) Kind() AnswerKind         { return AnswerKindDate }
func (TimeAnswer) Kind() AnswerKind         { return AnswerKindTime }
func (SingleChoiceAnswer) Kind() AnswerKind { return AnswerKindSingleChoice }
func (MultiChoiceAnswer) Kind() AnswerKind  { return AnswerKindMultiChoice }
func (PhotoAnswer) Kind() AnswerKind        { return AnswerKindPhoto }
func (SignatureAnswer) Kind() AnswerKind    { return AnswerKindSignature }

func (BooleanAnswer) isAnswer()      {}
func (TextAnswer) isAnswer()         {}
func (NumberAnswer) isAnswer()       {}
func (CurrencyAnswer) isAnswer()     {}
func (DateAnswer) isAnswer()         {}
func (TimeAnswer) isAnswer()         {}
func (SingleChoiceAnswer) isAnswer() {}
func (MultiChoiceAnswer) isAnswer()  {}
func (PhotoAnswer) isAnswer()        {}
func (SignatureAnswer) isAnswer()    {}

const maxTextAnswer = 5000

// RawAnswer is an answer as submitted, before it is checked against the item.
// Value carries scalar kinds, Values multi-choice selections, Uri the
// upload handle of photo and signature answers.
type RawAnswer struct {
	Value          *string  `json:"value"`
	Values         []string `json:"values"`
	Uri            string   `json:"uri"`
	SignerName     string   `json:"signer_name"`
	SignerDocument string   `json:"signer_document"`
}

// UnmarshalJSON accepts value as a JSON string, number or boolean and keeps its literal text.
func (r *RawAnswer) UnmarshalJSON(b []byte) error {
	var aux struct {
		Value          json.RawMessage `json:"value"`
		Values         []string        `json:"values"`
		Uri            string          `json:"uri"`
		SignerName     string          `json:"signer_name"`
		SignerDocument string          `json:"signer_document"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = RawAnswer{
		Values:         aux.Values,
		Uri:            aux.Uri,
		SignerName:     aux.SignerName,
		SignerDocument: aux.SignerDocument,
	}
	raw := strings.TrimSpace(string(aux.Value))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, "\"") {
		var s string
		if err := json.Unmarshal(aux.Value, &s); err != nil {
			return err
		}
		r.Value = &s
		return nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return fmt.Errorf("value must be a scalar")
	}
	r.Value = &raw
	return nil
}

func (r RawAnswer) text() string {
	if r.Value == nil {
		return ""
	}
	return strings.TrimSpace(*r.Value)
}

// ParseAnswer checks raw against the item's kind and options and returns
// the coerced answer. A blank submission clears the item and yields nil.
func ParseAnswer(itemId int, kind AnswerKind, options []string, raw RawAnswer) (Answer, error) {
	invalid := func(format string, args ...any) error {
		return &InvalidAnswerError{ItemId: itemId, Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}
	value := raw.text()

	switch kind {
	case AnswerKindBoolean:
		if value == "" {
			return nil, nil
		}
		b, ok := parseBool(value)
		if !ok {
			return nil, invalid("%q is not a yes/no value", value)
		}
		return BooleanAnswer{Value: b}, nil

	case AnswerKindText:
		if value == "" {
			return nil, nil
		}
		if utf8.RuneCountInString(value) > maxTextAnswer {
			return nil, invalid("text longer than %d characters", maxTextAnswer)
		}
		return TextAnswer{Value: value}, nil

	case AnswerKindNumber:
		if value == "" {
			return nil, nil
		}
		d, err := utils.ParseDecimal(value)
		if err != nil {
			return nil, invalid("%q is not a number", value)
		}
		if !fitsColumn(d, moneyPrecision, moneyScale) {
			return nil, invalid("%q is out of range", value)
		}
		return NumberAnswer{Value: d}, nil

	case AnswerKindCurrency:
		if value == "" {
			return nil, nil
		}
		d, err := utils.ParseDecimal(strings.TrimPrefix(value, "R$"))
		if err != nil {
			return nil, invalid("%q is not an amount", value)
		}
		if !fitsColumn(d, moneyPrecision, moneyScale) {
			return nil, invalid("%q is out of range", value)
		}
		return CurrencyAnswer{Value: d.Round(2)}, nil

	case AnswerKindDate:
		if value == "" {
			return nil, nil
		}
		t, ok := parseDate(value)
		if !ok {
			return nil, invalid("%q is not a date (use YYYY-MM-DD or DD/MM/YYYY)", value)
		}
		return DateAnswer{Value: t}, nil

	case AnswerKindTime:
		if value == "" {
			return nil, nil
		}
		t, ok := parseClock(value)
		if !ok {
			return nil, invalid("%q is not a time (use HH:MM)", value)
		}
		return TimeAnswer{Value: t}, nil

	case AnswerKindSingleChoice:
		if value == "" {
			return nil, nil
		}
		if !containsOption(options, value) {
			return nil, invalid("%q is not one of the options", value)
		}
		return SingleChoiceAnswer{Option: value}, nil

	case AnswerKindMultiChoice:
		selected := make(map[string]bool)
		picks := raw.Values
		if len(picks) == 0 && value != "" {
			picks = []string{value}
		}
		for _, p := range picks {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !containsOption(options, p) {
				return nil, invalid("%q is not one of the options", p)
			}
			selected[p] = true
		}
		if len(selected) == 0 {
			return nil, nil
		}
		ordered := make([]string, 0, len(selected))
		for _, opt := range options {
			if selected[opt] {
				ordered = append(ordered, opt)
			}
		}
		return MultiChoiceAnswer{Options: ordered}, nil

	case AnswerKindPhoto:
		uri := strings.TrimSpace(raw.Uri)
		if uri == "" {
			return nil, nil
		}
		return PhotoAnswer{Uri: uri}, nil

	case AnswerKindSignature:
		uri := strings.TrimSpace(raw.Uri)
		name := strings.TrimSpace(raw.SignerName)
		doc := strings.TrimSpace(raw.SignerDocument)
		if uri == "" && name == "" && doc == "" {
			return nil, nil
		}
		if uri == "" {
			return nil, invalid("signature image is required")
		}
		if name == "" {
			return nil, invalid("signer name is required")
		}
		if !utils.ValidateNationalId(doc) {
			return nil, invalid("signer document %q is not a valid national id", doc)
		}
		return SignatureAnswer{Uri: uri, SignerName: name, SignerDocument: utils.OnlyDigits(doc)}, nil

	default:
		return nil, invalid("unsupported answer kind")
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "yes", "y", "sim", "s", "on":
		return true, true
	case "no", "n", "nao", "não", "off":
		return false, true
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseClock(s string) (string, bool) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

func containsOption(options []string, v string) bool {
	for _, opt := range options {
		if opt == v {
			return true
		}
	}
	return false
}

// answersEqual compares two answers by value; nil equals only nil.
func answersEqual(a, b Answer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case BooleanAnswer:
		return x.Value == b.(BooleanAnswer).Value
	case TextAnswer:
		return x.Value == b.(TextAnswer).Value
	case NumberAnswer:
		return x.Value.Equal(b.(NumberAnswer).Value)
	case CurrencyAnswer:
		return x.Value.Equal(b.(CurrencyAnswer).Value)
	case DateAnswer:
		return x.Value.Equal(b.(DateAnswer).Value)
	case TimeAnswer:
		return x.Value == b.(TimeAnswer).Value
	case SingleChoiceAnswer:
		return x.Option == b.(SingleChoiceAnswer).Option
	case MultiChoiceAnswer:
		y := b.(MultiChoiceAnswer)
		if len(x.Options) != len(y.Options) {
			return false
		}
		for i := range x.Options {
			if x.Options[i] != y.Options[i] {
				return false
			}
		}
		return true
	case PhotoAnswer:
		return x.Uri == b.(PhotoAnswer).Uri
	case SignatureAnswer:
		return x == b.(SignatureAnswer)
	default:
		return false
	}
}

// DescribeAnswer renders an answer for audit descriptions and exports.
func DescribeAnswer(a Answer) (string, error) {
	if a == nil {
		return "", nil
	}
	switch x := a.(type) {
	case BooleanAnswer:
		if x.Value {
			return "Yes", nil
		}
		return "No", nil
	case TextAnswer:
		return x.Value, nil
	case NumberAnswer:
		return x.Value.String(), nil
	case CurrencyAnswer:
		return x.Value.StringFixed(2), nil
	case DateAnswer:
		return x.Value.Format("2006-01-02"), nil
	case TimeAnswer:
		return x.Value, nil
	case SingleChoiceAnswer:
		return x.Option, nil
	case MultiChoiceAnswer:
		return strings.Join(x.Options, ", "), nil
	case PhotoAnswer:
		return x.Uri, nil
	case SignatureAnswer:
		return fmt.Sprintf("%s (%s)", x.SignerName, x.SignerDocument), nil
	default:
		return "", fmt.Errorf("unsupported answer type %T", a)
	}
}

// blobHandles lists the storage handles an answer owns.
func blobHandles(a Answer) []string {
	switch x := a.(type) {
	case PhotoAnswer:
		return []string{x.Uri}
	case SignatureAnswer:
		return []string{x.Uri}
	default:
		return nil
	}
}
