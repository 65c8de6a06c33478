package models

import (
	"encoding/json"
	"testing"
)

func TestStatusAccessible(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{status: StatusSuccess, expected: true},
		{status: StatusRedirect, expected: true},
		{status: StatusHTTPError, expected: false},
		{status: StatusTimeout, expected: false},
		{status: StatusConnectionError, expected: false},
		{status: StatusUnknownError, expected: false},
		{status: StatusMalformedInput, expected: false},
		{status: StatusCancelled, expected: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Accessible(); got != tt.expected {
				t.Fatalf("%s.Accessible() = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}

func TestTargetKeyDistinguishesSections(t *testing.T) {
	a := Target{URL: "https://example.com", Section: "one"}
	b := Target{URL: "https://example.com", Section: "two"}
	if a.Key() == b.Key() {
		t.Fatalf("keys for different sections should differ: %q", a.Key())
	}
	if a.Key() != (Target{URL: "https://example.com", Section: "one", Description: "other"}).Key() {
		t.Fatalf("description must not be part of the key")
	}
}

func TestRecordJSONOmitsHashWhenUnset(t *testing.T) {
	failed := Record{URL: "https://example.com/missing", Status: StatusTimeout}
	data, err := json.Marshal(failed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["content_hash"]; ok {
		t.Fatalf("content_hash should be omitted for %s records", failed.Status)
	}
	if decoded["status"] != "timeout" {
		t.Fatalf("status = %v, want timeout", decoded["status"])
	}
	if _, ok := decoded["score"]; !ok {
		t.Fatalf("score should always be present")
	}
}

func TestRecordScored(t *testing.T) {
	if !(Record{Status: StatusSuccess}).Scored() {
		t.Fatalf("success without extraction error should be scored")
	}
	if (Record{Status: StatusSuccess, ExtractionError: "parse"}).Scored() {
		t.Fatalf("extraction failure should be unscored")
	}
	if (Record{Status: StatusRedirect}).Scored() {
		t.Fatalf("redirect should be unscored")
	}
}
