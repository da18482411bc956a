package validation

import (
	"strings"
	"testing"
)

type sample struct {
	SentimentID int64  `json:"sentimentId" validate:"required,gt=0"`
	Type        string `json:"intentionType" validate:"required,oneof=PROCESS TRANSFORM"`
	Note        string `json:"note" validate:"max=5"`
}

func TestValidateStructPasses(t *testing.T) {
	if err := ValidateStruct(&sample{SentimentID: 1, Type: "PROCESS"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStructMessages(t *testing.T) {
	tests := []struct {
		name  string
		input sample
		field string
		want  string
	}{
		{"missing id", sample{Type: "PROCESS"}, "sentimentId", "sentimentId is required"},
		{"bad type", sample{SentimentID: 1, Type: "X"}, "intentionType", "intentionType must be one of: PROCESS TRANSFORM"},
		{"long note", sample{SentimentID: 1, Type: "PROCESS", Note: "abcdefg"}, "note", "note must be at most 5 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), err)
			}
			if errs[0].Field != tt.field {
				t.Errorf("field = %q, want %q", errs[0].Field, tt.field)
			}
			if errs[0].Message != tt.want {
				t.Errorf("message = %q, want %q", errs[0].Message, tt.want)
			}
		})
	}
}

func TestToAPIErrorMultiple(t *testing.T) {
	err := ValidateStruct(&sample{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "sentimentId") || !strings.Contains(apiErr.Message, "intentionType") {
		t.Errorf("message should name both fields: %q", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("expected fields detail")
	}
}
