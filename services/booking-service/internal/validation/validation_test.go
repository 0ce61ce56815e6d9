package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Date  string   `json:"date" validate:"required,date"`
	Time  string   `json:"time" validate:"required,hhmm"`
	Phone string   `json:"client_phone" validate:"required,phone"`
	Email string   `json:"client_email" validate:"required,email"`
	IDs   []string `json:"service_ids" validate:"min=1,max=3,unique"`
}

func TestStructCollectsEveryField(t *testing.T) {
	v := New()
	err := v.Struct(sample{Date: "10/06/2024", Time: "9:00", Phone: "123", Email: "nope"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	for _, field := range []string{"date", "time", "client_phone", "client_email", "service_ids"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected %s in fields, got %v", field, verr.Fields)
		}
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	v := New()
	err := v.Struct(sample{Date: "2024-06-10", Time: "10:00", Phone: "(11) 98765-4321", Email: "a@b.co", IDs: []string{"x"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestMergeKeepsFirstMessage(t *testing.T) {
	v := New()
	dst := Single("date", "custom message")
	if err := v.Merge(dst, sample{Date: "bad"}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if dst.Fields["date"] != "custom message" {
		t.Fatalf("expected existing message preserved, got %q", dst.Fields["date"])
	}
	if _, ok := dst.Fields["time"]; !ok {
		t.Fatal("expected merged time field")
	}
}
