package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions answers chat completion calls with canned replies in order.
func fakeCompletions(t *testing.T, replies ...string) (*httptest.Server, *[]openai.ChatCompletionRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		seen = append(seen, req)
		reply := "no more replies"
		if len(seen) <= len(replies) {
			reply = replies[len(seen)-1]
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func setTestEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_BASE_URL", baseURL)
	t.Setenv("LLM_MODEL", "test-model")
	t.Setenv("APP_VARIANT", "")
	t.Setenv("PROMPTS_FILE", "")
	t.Setenv("DB_URL", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "audit-analyzer version")
}

func TestPromptsCmd(t *testing.T) {
	setTestEnv(t, "http://unused")
	out, err := execute(t, "prompts")
	require.NoError(t, err)
	assert.Contains(t, out, "summary:")
	assert.Contains(t, out, "decision_support:")
	assert.Contains(t, out, "qa:")
}

func TestAnalyzeQAJSON(t *testing.T) {
	srv, seen := fakeCompletions(t, "Key Findings: SSH root login enabled...", "Top risk: weak SSH policy")
	setTestEnv(t, srv.URL)

	path := filepath.Join(t.TempDir(), "audit.txt")
	require.NoError(t, os.WriteFile(path, []byte("firewall misconfigured; SSH root login enabled"), 0o600))

	out, err := execute(t, "analyze", path, "-q", "What is the top risk?", "-o", "json")
	require.NoError(t, err)

	var res analyzeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "qa", res.Variant)
	assert.Equal(t, "Key Findings: SSH root login enabled...", res.AuditSummary)
	assert.Equal(t, "Top risk: weak SSH policy", res.SecondaryResult)

	require.Len(t, *seen, 2)
	assert.Equal(t, "Analyze this cybersecurity audit:\nfirewall misconfigured; SSH root login enabled", (*seen)[0].Messages[1].Content)
	assert.Equal(t, "Audit Summary:\nKey Findings: SSH root login enabled...\n\nQuestion:\nWhat is the top risk?", (*seen)[1].Messages[1].Content)
}

func TestAnalyzeSummaryOnlyYAML(t *testing.T) {
	srv, seen := fakeCompletions(t, "Summary X")
	setTestEnv(t, srv.URL)

	path := filepath.Join(t.TempDir(), "audit.md")
	require.NoError(t, os.WriteFile(path, []byte("# Audit\nweak TLS"), 0o600))

	out, err := execute(t, "analyze", path, "--summary-only", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "audit_summary: Summary X")
	assert.Len(t, *seen, 1)
}

func TestAnalyzeRejectsUndecodableFile(t *testing.T) {
	srv, seen := fakeCompletions(t)
	setTestEnv(t, srv.URL)

	path := filepath.Join(t.TempDir(), "audit.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xC3, 0x28, 0xFF}, 0o600))

	_, err := execute(t, "analyze", path, "-o", "json")
	require.Error(t, err)
	assert.Empty(t, *seen)
}

func TestAnalyzeMissingCredential(t *testing.T) {
	setTestEnv(t, "http://unused")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := execute(t, "analyze", "whatever.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestAnalyzeQANeedsQuestion(t *testing.T) {
	srv, seen := fakeCompletions(t)
	setTestEnv(t, srv.URL)
	path := filepath.Join(t.TempDir(), "audit.txt")
	require.NoError(t, os.WriteFile(path, []byte("doc"), 0o600))

	_, err := execute(t, "analyze", path, "--variant", "qa")
	require.Error(t, err)
	assert.Empty(t, *seen)
}

func TestServeRefusesWithoutCredential(t *testing.T) {
	setTestEnv(t, "http://unused")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := execute(t, "serve", "--port", "0")
	require.Error(t, err)
}
