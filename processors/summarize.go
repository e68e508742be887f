package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"videonotes/config"
	"videonotes/core"
)

// Summarizer produces the final note text from the synthesized prompt.
// One attempt, no retries; a failure surfaces to the caller as is.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, report core.Reporter) (string, error)
}

// OpenAISummarizer submits the prompt as a single user message to the
// hosted chat-completion endpoint.
type OpenAISummarizer struct {
	cli   *openai.Client
	model string
}

func (s OpenAISummarizer) Summarize(ctx context.Context, prompt string, report core.Reporter) (string, error) {
	resp, err := s.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", core.ErrAPI, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", core.ErrAPI)
	}
	return resp.Choices[0].Message.Content, nil
}

// LocalLLMSummarizer generates the summary with a locally stored causal
// language model through a helper script. The load step is lazy and
// idempotent per process.
type LocalLLMSummarizer struct {
	ModelDir    string
	MaxTokens   int
	Temperature float32

	mu         sync.Mutex
	loaded     bool
	scriptPath string
}

const summarizeScript = `#!/usr/bin/env python3
import sys
from transformers import AutoModelForCausalLM, AutoTokenizer

model_dir, max_tokens, temperature = sys.argv[1], int(sys.argv[2]), float(sys.argv[3])
prompt = sys.stdin.read()
tokenizer = AutoTokenizer.from_pretrained(model_dir)
model = AutoModelForCausalLM.from_pretrained(model_dir, trust_remote_code=True, device_map="auto")
inputs = tokenizer(prompt, return_tensors="pt", padding=True)
output = model.generate(**inputs, temperature=temperature, max_new_tokens=max_tokens)
print(tokenizer.decode(output[0], skip_special_tokens=True))
`

func (s *LocalLLMSummarizer) load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return core.GlyphSkipped + " summarizer model loaded", nil
	}
	if _, err := os.Stat(s.ModelDir); err != nil {
		return "", fmt.Errorf("%w: summarizer model dir %s: %v", core.ErrModel, s.ModelDir, err)
	}
	scriptPath := filepath.Join(os.TempDir(), "summarize_notes.py")
	if err := os.WriteFile(scriptPath, []byte(summarizeScript), 0644); err != nil {
		return "", fmt.Errorf("%w: write summarize script: %v", core.ErrIO, err)
	}
	s.scriptPath = scriptPath
	s.loaded = true
	return core.GlyphDone + " summarizer model loaded", nil
}

func (s *LocalLLMSummarizer) Summarize(ctx context.Context, prompt string, report core.Reporter) (string, error) {
	msg, err := s.load()
	if err != nil {
		return "", err
	}
	report.Milestone(msg)

	cmdCtx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	cmd := commandWithStdin(cmdCtx, prompt, "python3", s.scriptPath, s.ModelDir,
		strconv.Itoa(s.MaxTokens), fmt.Sprintf("%.2f", s.Temperature))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: local summarizer: %v", core.ErrModel, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// MockSummarizer returns a canned result and counts calls. Test helper.
type MockSummarizer struct {
	Result string
	Calls  int
}

func (m *MockSummarizer) Summarize(ctx context.Context, prompt string, report core.Reporter) (string, error) {
	m.Calls++
	return m.Result, nil
}

// PickSummarizer branches on the presence of an API credential: hosted
// chat completion when configured, local model otherwise.
func PickSummarizer() Summarizer {
	cfg, err := config.LoadConfig()
	if err == nil && cfg.HasValidAPI() {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return OpenAISummarizer{cli: openai.NewClientWithConfig(clientConfig), model: cfg.ChatModel}
	}
	modelDir, maxTokens, temp := "deepseek_model", 500, float32(0.7)
	if err == nil {
		modelDir, maxTokens, temp = cfg.SummaryModelDir, cfg.SummaryMaxTokens, cfg.SummaryTemp
	}
	return &LocalLLMSummarizer{ModelDir: modelDir, MaxTokens: maxTokens, Temperature: temp}
}
