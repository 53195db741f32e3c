package extractor

import (
	"context"
	"sync"

	"github.com/aiox-platform/usermemory/internal/llm"
)

type fakeGenerator struct {
	mu       sync.Mutex
	resp     *llm.Response
	err      error
	requests []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testConfig(t interface{ Fatalf(string, ...any) }, gen llm.Generator) Config {
	prompts, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("loading prompts: %v", err)
	}
	return Config{Generator: gen, Model: "test-model", Prompts: prompts}
}
