package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestProcessingResultJSONOmitsRawError(t *testing.T) {
	res := ProcessingResult{
		ItemID: 7,
		Status: StatusError,
		Reason: "classification: upstream timeout",
		Err:    errors.New("upstream timeout"),
	}

	out, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(out), `"Err"`) {
		t.Fatalf("error value must not leak into JSON as an empty object:\n%s", out)
	}
	if !strings.Contains(string(out), "classification: upstream timeout") {
		t.Fatalf("reason must carry the printable detail:\n%s", out)
	}
}
