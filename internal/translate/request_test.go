package translate

import (
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tyrchen/claude-code-proxy/internal/config"
	"github.com/tyrchen/claude-code-proxy/internal/schema"
	"github.com/tyrchen/claude-code-proxy/internal/state"
)

func newTestTranslator() *Translator {
	cfg := &config.Config{
		ModelOpus:    "gemini-3-pro-preview",
		ModelSonnet:  "gemini-3-flash-preview",
		ModelHaiku:   "gemini-3-flash-lite-preview",
		ModelDefault: "gemini-3-flash-preview",
		MaxMaxTokens: 1_000_000,
	}
	return New(cfg, state.New(time.Hour), schema.NewCache(64))
}

func TestResolveModelSubstringMatchWinsOverDefault(t *testing.T) {
	cfg := &config.Config{ModelOpus: "opus-model", ModelDefault: "default-model"}
	if got := ResolveModel("claude-opus-4", cfg); got != "opus-model" {
		t.Errorf("got %q, want opus-model", got)
	}
}

func TestResolveModelGlobalOverrideWinsOverEverything(t *testing.T) {
	cfg := &config.Config{
		ModelOverride: "forced-model",
		ModelOpus:     "opus-model",
		ModelDefault:  "default-model",
	}
	if got := ResolveModel("claude-opus-4", cfg); got != "forced-model" {
		t.Errorf("got %q, want forced-model", got)
	}
	if got := ResolveModel("claude-unknown-9", cfg); got != "forced-model" {
		t.Errorf("got %q, want forced-model", got)
	}
}

func TestResolveModelFallsBackToDefault(t *testing.T) {
	cfg := &config.Config{ModelDefault: "default-model"}
	if got := ResolveModel("claude-unknown-9", cfg); got != "default-model" {
		t.Errorf("got %q, want default-model", got)
	}
}

func TestTranslateRejectsEmptyMessages(t *testing.T) {
	tr := newTestTranslator()
	_, _, err := tr.Translate([]byte(`{"model":"claude-sonnet-4","messages":[]}`))
	if err == nil {
		t.Fatal("expected error for empty messages")
	}
}

func TestTranslateRejectsFirstTurnNotUser(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[{"role":"assistant","content":"hi"}]}`
	_, _, err := tr.Translate([]byte(raw))
	if err == nil {
		t.Fatal("expected error for first turn not user")
	}
}

func TestTranslateRejectsConsecutiveAssistantTurns(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":"a"},
		{"role":"assistant","content":"b"}
	]}`
	_, _, err := tr.Translate([]byte(raw))
	if err == nil {
		t.Fatal("expected error for consecutive assistant turns")
	}
}

func TestTranslateRejectsOutOfRangeTemperature(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","temperature":3,"messages":[{"role":"user","content":"hi"}]}`
	_, _, err := tr.Translate([]byte(raw))
	if err == nil {
		t.Fatal("expected error for temperature out of range")
	}
}

// Scenario 2 (spec.md §8): system prompt conversion.
func TestTranslateSystemPromptString(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","system":"Be terse.","messages":[{"role":"user","content":"hi"}]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := gjson.GetBytes(out, "system_instruction.parts.0.text").String()
	if got != "Be terse." {
		t.Errorf("system_instruction text = %q, want %q", got, "Be terse.")
	}
}

func TestTranslateSystemPromptBlockArray(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","system":[{"type":"text","text":"Be terse."}],"messages":[{"role":"user","content":"hi"}]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := gjson.GetBytes(out, "system_instruction.parts.0.text").String()
	if got != "Be terse." {
		t.Errorf("system_instruction text = %q, want %q", got, "Be terse.")
	}
}

// Scenario 3 (spec.md §8): assistant turns map to the "model" role.
func TestTranslateAssistantRoleBecomesModel(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":"hello"}
	]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(out, "contents.1.role").String(); got != "model" {
		t.Errorf("contents[1].role = %q, want model", got)
	}
	if got := gjson.GetBytes(out, "contents.0.role").String(); got != "user" {
		t.Errorf("contents[0].role = %q, want user", got)
	}
}

// Scenario 4 (spec.md §8): tool declarations pass through with
// input_schema renamed to parameters.
func TestTranslateToolDeclarationRename(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}],
		"tools":[{"name":"get_weather","description":"look up weather","input_schema":{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}}]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(out, "tools.0.functionDeclarations.0.name").String(); got != "get_weather" {
		t.Errorf("function name = %q, want get_weather", got)
	}
	if got := gjson.GetBytes(out, "tools.0.functionDeclarations.0.parameters.type").String(); got != "object" {
		t.Errorf("parameters.type = %q, want object", got)
	}
	if gjson.GetBytes(out, "tools.0.functionDeclarations.0.input_schema").Exists() {
		t.Errorf("expected input_schema to be renamed away, found it still present")
	}
}

func TestTranslateRejectsInvalidToolSchema(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}],
		"tools":[{"name":"bad","description":"x","input_schema":{"type":"string"}}]}`
	_, _, err := tr.Translate([]byte(raw))
	if err == nil {
		t.Fatal("expected error for invalid tool schema")
	}
}

// Scenario 6 (spec.md §8): tool_use followed by tool_result round-trips
// the recorded function name back into the upstream functionResponse.
func TestTranslateToolResultRoundTrip(t *testing.T) {
	tr := newTestTranslator()

	// First turn: assistant emits a tool_use block. The state store learns
	// the function name when the SSE emitter registers it while streaming
	// the earlier response; the translator only reads it, so register it
	// directly here to isolate the translator's read path.
	tr.store.RegisterToolUse("toolu-abc123", "get_weather", "")

	raw := `{"model":"claude-sonnet-4","messages":[
		{"role":"user","content":"what's the weather?"},
		{"role":"assistant","content":[{"type":"tool_use","id":"toolu-abc123","name":"get_weather","input":{"city":"nyc"}}]},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu-abc123","content":"72F and sunny"}]}
	]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(out, "contents.2.parts.0.functionResponse.name").String(); got != "get_weather" {
		t.Errorf("functionResponse.name = %q, want get_weather", got)
	}
	if got := gjson.GetBytes(out, "contents.2.parts.0.functionResponse.response.result").String(); got != "72F and sunny" {
		t.Errorf("functionResponse.response.result = %q, want %q", got, "72F and sunny")
	}
}

func TestTranslateExpiresIdleStoreEntriesBeforeTranslating(t *testing.T) {
	cfg := &config.Config{
		ModelDefault: "gemini-3-flash-preview",
		MaxMaxTokens: 1_000_000,
	}
	store := state.New(time.Millisecond)
	tr := New(cfg, store, schema.NewCache(64))

	store.RegisterToolUse("toolu-stale", "get_weather", "")
	time.Sleep(5 * time.Millisecond)

	raw := `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`
	if _, _, err := tr.Translate([]byte(raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0 after Translate pruned the expired entry", store.Len())
	}
}

func TestTranslateToolResultUnknownIDUsesSentinel(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu-never-seen","content":"ok"}]}
	]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(out, "contents.0.parts.0.functionResponse.name").String(); got != unknownFunctionSentinel {
		t.Errorf("functionResponse.name = %q, want sentinel %q", got, unknownFunctionSentinel)
	}
}

func TestTranslateToolUseCarriesThoughtSignature(t *testing.T) {
	tr := newTestTranslator()
	tr.store.RegisterToolUse("toolu-xyz", "search", "opaque-token")

	raw := `{"model":"claude-sonnet-4","messages":[
		{"role":"user","content":"go"},
		{"role":"assistant","content":[{"type":"tool_use","id":"toolu-xyz","name":"search","input":{}}]}
	]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(out, "contents.1.parts.0.thoughtSignature").String(); got != "opaque-token" {
		t.Errorf("thoughtSignature = %q, want opaque-token", got)
	}
}

func TestTranslateToolsAreCachedAcrossCalls(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}],
		"tools":[{"name":"get_weather","description":"x","input_schema":{"type":"object"}}]}`

	out1, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := tr.cache.Len()
	out2, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.cache.Len() != before {
		t.Errorf("cache grew on repeated identical tool set: before=%d after=%d", before, tr.cache.Len())
	}
	if string(out1) != string(out2) {
		t.Errorf("expected identical output for identical input")
	}
}

func TestTranslateGenerationConfigMapping(t *testing.T) {
	tr := newTestTranslator()
	raw := `{"model":"claude-sonnet-4","max_tokens":1024,"temperature":0.5,"top_p":0.9,"top_k":40,"stop_sequences":["END"],
		"messages":[{"role":"user","content":"hi"}]}`
	out, _, err := tr.Translate([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(out, "generationConfig.maxOutputTokens").Int(); got != 1024 {
		t.Errorf("maxOutputTokens = %d, want 1024", got)
	}
	if got := gjson.GetBytes(out, "generationConfig.stopSequences.0").String(); got != "END" {
		t.Errorf("stopSequences[0] = %q, want END", got)
	}
}
