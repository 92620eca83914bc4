// Package translate implements the request translator from spec.md §4.1:
// it consumes a fully-buffered downstream (Claude Messages API) request
// and produces an upstream (Gemini GenerateContent API) request body plus
// the resolved upstream model name.
//
// Grounded on the teacher's
// internal/translator/gemini/claude/gemini_claude_request.go
// (ConvertClaudeRequestToGemini converts in the same Claude-to-Gemini
// direction and uses the gjson/sjson wire-building idiom this package
// follows).
// Deliberately NOT grounded on that file's tool_result handling: both it
// and original_source/src/transform/request.rs recover the function name
// by string-splitting the tool_use id; spec.md §4.1/§4.2/§9 instead
// mandates a conversation-state-store lookup with sentinel fallback, which
// is what this package does.
package translate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	log "github.com/sirupsen/logrus"

	"github.com/tyrchen/claude-code-proxy/internal/apperr"
	"github.com/tyrchen/claude-code-proxy/internal/config"
	"github.com/tyrchen/claude-code-proxy/internal/schema"
	"github.com/tyrchen/claude-code-proxy/internal/state"
)

const unknownFunctionSentinel = "unknown_tool"

// Translator holds the collaborators the translator needs across calls:
// model-resolution config, the conversation state store, and the tool
// schema cache. One instance is shared by every request (it carries no
// per-request state itself).
type Translator struct {
	cfg   *config.Config
	store *state.Store
	cache *schema.Cache
}

// New builds a Translator.
func New(cfg *config.Config, store *state.Store, cache *schema.Cache) *Translator {
	return &Translator{cfg: cfg, store: store, cache: cache}
}

// Translate validates and converts a downstream request body into an
// upstream request body, returning the resolved upstream model name
// alongside it.
func (t *Translator) Translate(rawJSON []byte) (upstreamBody []byte, resolvedModel string, err error) {
	t.store.ExpireIdle(time.Now())

	root := gjson.ParseBytes(rawJSON)

	if err := validate(root, t.cfg); err != nil {
		return nil, "", err
	}

	resolvedModel = ResolveModel(root.Get("model").String(), t.cfg)

	out := `{"contents":[]}`
	out, _ = sjson.Set(out, "model", resolvedModel)

	out, err = t.translateMessages(out, root.Get("messages"))
	if err != nil {
		return nil, "", err
	}

	if sys := root.Get("system"); sys.Exists() {
		if instr := convertSystemPrompt(sys); instr != "" {
			out, _ = sjson.SetRaw(out, "system_instruction", instr)
		}
	}

	out = applyGenerationConfig(out, root)

	if tools := root.Get("tools"); tools.Exists() && tools.IsArray() && len(tools.Array()) > 0 {
		toolsRecord, err := t.translateTools(tools)
		if err != nil {
			return nil, "", err
		}
		out, _ = sjson.SetRaw(out, "tools", toolsRecord)
	}

	return []byte(out), resolvedModel, nil
}

func validate(root gjson.Result, cfg *config.Config) error {
	messages := root.Get("messages").Array()
	if len(messages) == 0 {
		return apperr.New(apperr.KindInvalidRequest, "messages: must not be empty")
	}
	if messages[0].Get("role").String() != "user" {
		return apperr.New(apperr.KindInvalidRequest, "messages[0].role: first message must be \"user\"")
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Get("role").String() == "assistant" && messages[i-1].Get("role").String() == "assistant" {
			return apperr.Newf(apperr.KindInvalidRequest, "messages[%d].role: two consecutive \"assistant\" turns", i)
		}
	}

	if mt := root.Get("max_tokens"); mt.Exists() {
		v := mt.Int()
		ceiling := int64(cfg.MaxMaxTokens)
		if v < 1 || (ceiling > 0 && v > ceiling) {
			return apperr.Newf(apperr.KindInvalidRequest, "max_tokens: %d is out of range [1, %d]", v, ceiling)
		}
	}
	if temp := root.Get("temperature"); temp.Exists() {
		v := temp.Float()
		if v < 0 || v > 2 {
			return apperr.Newf(apperr.KindInvalidRequest, "temperature: %v is out of range [0, 2]", v)
		}
	}
	if topP := root.Get("top_p"); topP.Exists() {
		v := topP.Float()
		if v < 0 || v > 1 {
			return apperr.Newf(apperr.KindInvalidRequest, "top_p: %v is out of range [0, 1]", v)
		}
	}
	if topK := root.Get("top_k"); topK.Exists() && topK.Int() < 1 {
		return apperr.Newf(apperr.KindInvalidRequest, "top_k: %d must be >= 1", topK.Int())
	}
	return nil
}

// ResolveModel is the pure function described in spec.md §4.1: a
// configuration override wins outright; otherwise substring matching on
// the downstream name selects between the three coarse classes; otherwise
// a single default. Idempotent: ResolveModel(ResolveModel(x)) need not
// equal ResolveModel(x) in general (the argument is a downstream name, the
// result an upstream one), but applying it twice to the same input always
// yields the same result (spec.md §8).
func ResolveModel(downstreamModel string, cfg *config.Config) string {
	if cfg.ModelOverride != "" {
		return cfg.ModelOverride
	}
	lower := strings.ToLower(downstreamModel)
	switch {
	case cfg.ModelOpus != "" && strings.Contains(lower, "opus"):
		return cfg.ModelOpus
	case cfg.ModelSonnet != "" && strings.Contains(lower, "sonnet"):
		return cfg.ModelSonnet
	case cfg.ModelHaiku != "" && strings.Contains(lower, "haiku"):
		return cfg.ModelHaiku
	default:
		return cfg.ModelDefault
	}
}

func (t *Translator) translateMessages(out string, messages gjson.Result) (string, error) {
	for _, msg := range messages.Array() {
		role := msg.Get("role").String()
		var upstreamRole string
		switch role {
		case "assistant":
			upstreamRole = "model"
		case "user":
			upstreamRole = "user"
		default:
			return "", apperr.Newf(apperr.KindInvalidRequest, "messages[].role: unsupported role %q", role)
		}

		parts, err := t.extractParts(msg.Get("content"))
		if err != nil {
			return "", err
		}
		if len(parts) == 0 {
			// An assistant turn (or any turn) that produces zero parts
			// after translation carries no semantic information.
			continue
		}

		content := `{}`
		content, _ = sjson.Set(content, "role", upstreamRole)
		partsArr := "[" + strings.Join(parts, ",") + "]"
		content, _ = sjson.SetRaw(content, "parts", partsArr)

		out, _ = sjson.SetRaw(out, "contents.-1", content)
	}
	return out, nil
}

// extractParts walks one turn's content (a plain string or an array of
// tagged blocks) and returns the raw JSON of each resulting upstream part.
func (t *Translator) extractParts(content gjson.Result) ([]string, error) {
	if !content.IsArray() {
		text := content.String()
		if text == "" {
			return nil, nil
		}
		p, _ := json.Marshal(map[string]string{"text": text})
		return []string{string(p)}, nil
	}

	var parts []string
	for _, block := range content.Array() {
		switch block.Get("type").String() {
		case "text":
			text := block.Get("text").String()
			p, _ := json.Marshal(map[string]string{"text": text})
			parts = append(parts, string(p))

		case "tool_use":
			part, err := t.toolUsePart(block)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)

		case "tool_result":
			part := t.toolResultPart(block)
			parts = append(parts, part)

		default:
			log.WithField("type", block.Get("type").String()).Warn("translate: skipping unrecognized content block")
		}
	}
	return parts, nil
}

func (t *Translator) toolUsePart(block gjson.Result) (string, error) {
	id := block.Get("id").String()
	name := block.Get("name").String()
	input := block.Get("input")

	part := `{"functionCall":{}}`
	part, _ = sjson.Set(part, "functionCall.name", name)
	if input.Exists() {
		part, _ = sjson.SetRaw(part, "functionCall.args", input.Raw)
	} else {
		part, _ = sjson.SetRaw(part, "functionCall.args", "{}")
	}

	if meta, ok := t.store.GetMetadata(id); ok && meta.ThoughtToken != "" {
		// Sibling field of the function call, never inside it (spec.md §9
		// "opaque thought token").
		part, _ = sjson.Set(part, "thoughtSignature", meta.ThoughtToken)
	}
	return part, nil
}

func (t *Translator) toolResultPart(block gjson.Result) string {
	toolUseID := block.Get("tool_use_id").String()

	functionName := unknownFunctionSentinel
	if meta, ok := t.store.GetMetadata(toolUseID); ok {
		functionName = meta.FunctionName
	} else if fallback := block.Get("name").String(); fallback != "" {
		functionName = fallback
	} else {
		log.WithField("tool_use_id", toolUseID).Warn("translate: no function name recorded for tool_result, using sentinel")
	}

	resultContent := block.Get("content")
	isError := block.Get("is_error").Bool()

	part := `{"functionResponse":{}}`
	part, _ = sjson.Set(part, "functionResponse.name", functionName)
	if resultContent.IsObject() || resultContent.IsArray() {
		part, _ = sjson.SetRaw(part, "functionResponse.response.result", resultContent.Raw)
	} else {
		part, _ = sjson.Set(part, "functionResponse.response.result", resultContent.String())
	}
	part, _ = sjson.Set(part, "functionResponse.response.error", isError)
	return part
}

// convertSystemPrompt builds the upstream system_instruction object from
// either a plain string or an array of text blocks (non-text blocks in the
// system prompt are skipped).
func convertSystemPrompt(sys gjson.Result) string {
	var parts []string
	if sys.IsArray() {
		for _, block := range sys.Array() {
			if block.Get("type").String() != "text" {
				continue
			}
			p, _ := json.Marshal(map[string]string{"text": block.Get("text").String()})
			parts = append(parts, string(p))
		}
	} else if text := sys.String(); text != "" {
		p, _ := json.Marshal(map[string]string{"text": text})
		parts = append(parts, string(p))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf(`{"parts":[%s]}`, strings.Join(parts, ","))
}

func applyGenerationConfig(out string, root gjson.Result) string {
	set := func(path string, v gjson.Result) {
		if v.Exists() {
			out, _ = sjson.Set(out, "generationConfig."+path, v.Value())
		}
	}
	set("maxOutputTokens", root.Get("max_tokens"))
	set("temperature", root.Get("temperature"))
	set("topP", root.Get("top_p"))
	set("topK", root.Get("top_k"))
	if stops := root.Get("stop_sequences"); stops.Exists() {
		out, _ = sjson.SetRaw(out, "generationConfig.stopSequences", stops.Raw)
	}
	return out
}

// translateTools renames input_schema -> parameters (the schema body
// itself passes through unchanged, per spec.md §4.1), wraps every
// declaration into a single upstream tool record, and reuses the cached
// record, without validating again, when this exact tool set has been seen
// before.
func (t *Translator) translateTools(tools gjson.Result) (string, error) {
	hash := schema.HashToolSet([]byte(tools.Raw))
	if cached, ok := t.cache.Get(hash); ok {
		return string(cached), nil
	}

	if err := schema.ValidateTools(tools); err != nil {
		return "", err
	}

	var decls []string
	for _, tool := range tools.Array() {
		decl := `{}`
		decl, _ = sjson.Set(decl, "name", tool.Get("name").String())
		decl, _ = sjson.Set(decl, "description", tool.Get("description").String())
		if schemaBody := tool.Get("input_schema"); schemaBody.Exists() {
			decl, _ = sjson.SetRaw(decl, "parameters", schemaBody.Raw)
		}
		decls = append(decls, decl)
	}

	record := fmt.Sprintf(`[{"functionDeclarations":[%s]}]`, strings.Join(decls, ","))
	t.cache.Put(hash, []byte(record))
	return record, nil
}
