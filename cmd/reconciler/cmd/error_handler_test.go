package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

func newTestErrorHandler(verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	var out bytes.Buffer
	return &CLIErrorHandler{logger: logger.Nop(), verbose: verbose, out: &out}, &out
}

func TestHandleErrorExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		exitCode int
		contains []string
	}{
		{
			name:     "nil error",
			err:      nil,
			exitCode: 0,
		},
		{
			name:     "input error",
			err:      errors.InputError(errors.CodeMissingColumn, "statement.xlsx", nil).WithContext("required", "Credit"),
			exitCode: 2,
			contains: []string{"Error:", "required: Credit", "Input error help:"},
		},
		{
			name:     "ledger error",
			err:      errors.LedgerError(errors.CodePersistenceFailed, "UNMATCHED", fmt.Errorf("file locked")).WithSuggestion("retry with 'reconciler review --run-id r1'"),
			exitCode: 3,
			contains: []string{"Suggestion: retry with 'reconciler review --run-id r1'", "Ledger error help:"},
		},
		{
			name:     "configuration error",
			err:      errors.ConfigurationError(errors.CodeMissingConfig, "statement", nil, nil),
			exitCode: 4,
			contains: []string{"Configuration error help:"},
		},
		{
			name:     "review error",
			err:      errors.ReviewError(errors.CodePendingNotFound, "r1", nil),
			exitCode: 5,
			contains: []string{"Review error help:", "pending list"},
		},
		{
			name:     "file not found",
			err:      &os.PathError{Op: "open", Path: "ledgers.xlsx", Err: os.ErrNotExist},
			exitCode: 2,
			contains: []string{"File not found"},
		},
		{
			name:     "permission denied",
			err:      &os.PathError{Op: "open", Path: "ledgers.xlsx", Err: os.ErrPermission},
			exitCode: 2,
			contains: []string{"Permission denied"},
		},
		{
			name:     "disk full",
			err:      fmt.Errorf("write pending.db: no space left on device"),
			exitCode: 3,
			contains: []string{"Insufficient disk space"},
		},
		{
			name:     "flag error",
			err:      fmt.Errorf(`unknown flag: --statment`),
			exitCode: 1,
			contains: []string{"unknown flag: --statment", "--help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, out := newTestErrorHandler(false)

			code := handler.HandleError(tt.err)
			if code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output should contain %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestHandleErrorVerboseShowsCause(t *testing.T) {
	err := errors.LedgerError(errors.CodeSnapshotFailed, "ledgers.xlsx", fmt.Errorf("zip: not a valid zip file"))

	handler, out := newTestErrorHandler(false)
	handler.HandleError(err)
	if strings.Contains(out.String(), "Underlying error") {
		t.Errorf("cause should be hidden without --verbose")
	}

	handler, out = newTestErrorHandler(true)
	handler.HandleError(err)
	if !strings.Contains(out.String(), "Underlying error: zip: not a valid zip file") {
		t.Errorf("verbose output should show the cause:\n%s", out.String())
	}
}

func TestHandleErrorSortsContext(t *testing.T) {
	err := errors.ReviewError(errors.CodeInvalidDecision, "r1", nil).
		WithContext("index", 4).
		WithContext("available", "0,1")

	handler, out := newTestErrorHandler(false)
	handler.HandleError(err)

	text := out.String()
	first, second := strings.Index(text, "available:"), strings.Index(text, "index:")
	if first < 0 || second < 0 || first > second {
		t.Errorf("context keys should be printed in order:\n%s", text)
	}
}
