package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offsync/internal/deadletter"
	"github.com/roach88/offsync/internal/dispatch"
	"github.com/roach88/offsync/internal/engine"
	"github.com/roach88/offsync/internal/gateway"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"processed": 2})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"processed": float64(2)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    buf,
		ErrWriter: io.Discard,
	}

	err := formatter.Error(CodeOffline, "device is offline", map[string]string{"command": "sync"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeOffline, resp.Error.Code)
	assert.Equal(t, "device is offline", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    out,
		ErrWriter: errOut,
	}

	require.NoError(t, formatter.Error(CodeNotFound, "no such entry", map[string]string{"id": "x"}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [NOT_FOUND]: no such entry")
	assert.NotContains(t, errOut.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error(CodeFailure, "boom", "more"))
	assert.Contains(t, buf.String(), "Error [FAILURE]: boom")
	assert.Contains(t, buf.String(), "Details: more")
}

func TestOutputFormatter_Render(t *testing.T) {
	data := map[string]int{"cleared": 3}
	text := func(w io.Writer) { fmt.Fprintln(w, "Cleared 3 queued actions") }

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.Render(data, text))
		assert.Equal(t, "Cleared 3 queued actions\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Render(data, text))
		assert.JSONEq(t, `{"status":"ok","data":{"cleared":3}}`, buf.String())
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Running %d scenarios", 3)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "Running 3 scenarios\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad flag"))))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())

	cause := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to load config", cause)
	assert.Equal(t, "failed to load config: no such file", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"offline", fmt.Errorf("sync: %w", engine.ErrOffline), CodeOffline},
		{"drain busy", engine.ErrDrainInProgress, CodeBusy},
		{"prefetch busy", engine.ErrPrefetchInProgress, CodeBusy},
		{"no cache", fmt.Errorf("GET /products: %w", dispatch.ErrOfflineNoCache), CodeNoCache},
		{"not found", fmt.Errorf("retry x: %w", deadletter.ErrNotFound), CodeNotFound},
		{"rejected", &gateway.APIError{StatusCode: 403, Message: "insufficient role"}, CodeRejected},
		{"usage", NewExitError(ExitCommandError, "bad"), CodeUsage},
		{"other", errors.New("disk full"), CodeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
