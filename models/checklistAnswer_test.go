package models_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/workorder_backend/models"
)

func strPtr(s string) *string { return &s }

func TestParseAnswer(t *testing.T) {
	options := []string{"A", "B", "C"}
	cases := []struct {
		name string
		kind models.AnswerKind
		raw  models.RawAnswer
		want models.Answer
	}{
		{"bool true", models.AnswerKindBoolean, models.RawAnswer{Value: strPtr("true")}, models.BooleanAnswer{Value: true}},
		{"bool sim", models.AnswerKindBoolean, models.RawAnswer{Value: strPtr("Sim")}, models.BooleanAnswer{Value: true}},
		{"bool false", models.AnswerKindBoolean, models.RawAnswer{Value: strPtr("false")}, models.BooleanAnswer{Value: false}},
		{"blank clears", models.AnswerKindBoolean, models.RawAnswer{}, nil},
		{"text trimmed", models.AnswerKindText, models.RawAnswer{Value: strPtr("  ok  ")}, models.TextAnswer{Value: "ok"}},
		{"number comma", models.AnswerKindNumber, models.RawAnswer{Value: strPtr("12,5")}, models.NumberAnswer{Value: dec("12.5")}},
		{"number at column limit", models.AnswerKindNumber, models.RawAnswer{Value: strPtr("9999999999999999.9999")}, models.NumberAnswer{Value: dec("9999999999999999.9999")}},
		{"text counts characters", models.AnswerKindText, models.RawAnswer{Value: strPtr(strings.Repeat("ç", 5000))}, models.TextAnswer{Value: strings.Repeat("ç", 5000)}},
		{"currency rounded", models.AnswerKindCurrency, models.RawAnswer{Value: strPtr("R$ 10.456")}, models.CurrencyAnswer{Value: dec("10.46")}},
		{"date iso", models.AnswerKindDate, models.RawAnswer{Value: strPtr("2026-03-04")}, models.DateAnswer{Value: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}},
		{"date br", models.AnswerKindDate, models.RawAnswer{Value: strPtr("04/03/2026")}, models.DateAnswer{Value: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}},
		{"time", models.AnswerKindTime, models.RawAnswer{Value: strPtr("07:30")}, models.TimeAnswer{Value: "07:30"}},
		{"single", models.AnswerKindSingleChoice, models.RawAnswer{Value: strPtr("B")}, models.SingleChoiceAnswer{Option: "B"}},
		{"multi in option order", models.AnswerKindMultiChoice, models.RawAnswer{Values: []string{"C", "A", "C"}}, models.MultiChoiceAnswer{Options: []string{"A", "C"}}},
		{"photo", models.AnswerKindPhoto, models.RawAnswer{Uri: "gs://b/p.jpg"}, models.PhotoAnswer{Uri: "gs://b/p.jpg"}},
		{"signature", models.AnswerKindSignature, models.RawAnswer{Uri: "gs://b/s.png", SignerName: "Ana", SignerDocument: "529.982.247-25"},
			models.SignatureAnswer{Uri: "gs://b/s.png", SignerName: "Ana", SignerDocument: "52998224725"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := models.ParseAnswer(1, c.kind, options, c.raw)
			if err != nil {
				t.Fatalf("ParseAnswer: %v", err)
			}
			wantDesc, _ := models.DescribeAnswer(c.want)
			gotDesc, _ := models.DescribeAnswer(got)
			if (got == nil) != (c.want == nil) || gotDesc != wantDesc {
				t.Fatalf("ParseAnswer = %#v, want %#v", got, c.want)
			}
			if got != nil && got.Kind() != c.kind {
				t.Fatalf("kind = %s, want %s", got.Kind(), c.kind)
			}
		})
	}
}

func TestParseAnswerRejects(t *testing.T) {
	options := []string{"A", "B"}
	cases := []struct {
		name string
		kind models.AnswerKind
		raw  models.RawAnswer
	}{
		{"choice outside options", models.AnswerKindSingleChoice, models.RawAnswer{Value: strPtr("Z")}},
		{"multi outside options", models.AnswerKindMultiChoice, models.RawAnswer{Values: []string{"A", "Z"}}},
		{"bool garbage", models.AnswerKindBoolean, models.RawAnswer{Value: strPtr("maybe")}},
		{"number garbage", models.AnswerKindNumber, models.RawAnswer{Value: strPtr("12x")}},
		{"number too large", models.AnswerKindNumber, models.RawAnswer{Value: strPtr("1e17")}},
		{"number rounds past limit", models.AnswerKindNumber, models.RawAnswer{Value: strPtr("-9999999999999999.99999")}},
		{"currency too large", models.AnswerKindCurrency, models.RawAnswer{Value: strPtr("R$ 10000000000000000")}},
		{"text too long", models.AnswerKindText, models.RawAnswer{Value: strPtr(strings.Repeat("ç", 5001))}},
		{"bad date", models.AnswerKindDate, models.RawAnswer{Value: strPtr("2026-13-45")}},
		{"bad time", models.AnswerKindTime, models.RawAnswer{Value: strPtr("25:99")}},
		{"signature without uri", models.AnswerKindSignature, models.RawAnswer{SignerName: "Ana", SignerDocument: "52998224725"}},
		{"signature without name", models.AnswerKindSignature, models.RawAnswer{Uri: "gs://b/s.png", SignerDocument: "52998224725"}},
		{"signature bad document", models.AnswerKindSignature, models.RawAnswer{Uri: "gs://b/s.png", SignerName: "Ana", SignerDocument: "111.111.111-11"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := models.ParseAnswer(9, c.kind, options, c.raw)
			var iae *models.InvalidAnswerError
			if !errors.As(err, &iae) {
				t.Fatalf("err = %v (answer %#v), want InvalidAnswerError", err, got)
			}
			if iae.ItemId != 9 || iae.Kind != c.kind {
				t.Fatalf("error identifies item %d kind %s", iae.ItemId, iae.Kind)
			}
		})
	}
}

func TestRawAnswerUnmarshal(t *testing.T) {
	cases := []struct {
		body  string
		want  string
		isNil bool
	}{
		{`{"value": "B"}`, "B", false},
		{`{"value": true}`, "true", false},
		{`{"value": 12.50}`, "12.50", false},
		{`{"value": null}`, "", true},
		{`{"uri": "gs://x"}`, "", true},
	}
	for _, c := range cases {
		var raw models.RawAnswer
		if err := json.Unmarshal([]byte(c.body), &raw); err != nil {
			t.Fatalf("unmarshal %s: %v", c.body, err)
		}
		if c.isNil {
			if raw.Value != nil {
				t.Fatalf("%s: value = %q, want nil", c.body, *raw.Value)
			}
			continue
		}
		if raw.Value == nil || *raw.Value != c.want {
			t.Fatalf("%s: value = %v, want %q", c.body, raw.Value, c.want)
		}
	}

	var raw models.RawAnswer
	if err := json.Unmarshal([]byte(`{"value": {"a": 1}}`), &raw); err == nil {
		t.Fatalf("object value accepted")
	}
}
