package schema

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestValidateToolsAccepts(t *testing.T) {
	raw := `[{"name":"TodoWrite","description":"update todos","input_schema":{"type":"object","properties":{"todos":{"type":"array"}},"required":["todos"]}}]`
	if err := ValidateTools(gjson.Parse(raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateToolsRejectsMissingName(t *testing.T) {
	raw := `[{"description":"x","input_schema":{"type":"object"}}]`
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for missing name")
	}
}

func TestValidateToolsRejectsNonObjectSchema(t *testing.T) {
	raw := `[{"name":"T","description":"x","input_schema":{"type":"string"}}]`
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for non-object input_schema")
	}
}

func TestValidateToolsRejectsDuplicateNames(t *testing.T) {
	raw := `[
		{"name":"T","description":"x","input_schema":{"type":"object"}},
		{"name":"T","description":"y","input_schema":{"type":"object"}}
	]`
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for duplicate tool names")
	}
}

func TestValidateToolsRejectsEnumOnNonString(t *testing.T) {
	raw := `[{"name":"T","description":"x","input_schema":{"type":"object","properties":{"n":{"type":"number","enum":[1,2]}}}}]`
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for enum on non-string type")
	}
}

func TestValidateToolsRejectsInvertedMinMax(t *testing.T) {
	raw := `[{"name":"T","description":"x","input_schema":{"type":"object","properties":{"n":{"type":"number","minimum":10,"maximum":1}}}}]`
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for minimum > maximum")
	}
}

func TestValidateToolsRejectsTooManyTools(t *testing.T) {
	raw := "["
	for i := 0; i < 129; i++ {
		if i > 0 {
			raw += ","
		}
		raw += `{"name":"T` + string(rune('a'+i%26)) + `","description":"x","input_schema":{"type":"object"}}`
	}
	raw += "]"
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for exceeding max tool count")
	}
}

func TestValidateToolsRejectsDeepNesting(t *testing.T) {
	schema := `{"type":"object"}`
	for i := 0; i < 12; i++ {
		schema = `{"type":"object","properties":{"n":` + schema + `}}`
	}
	raw := `[{"name":"T","description":"x","input_schema":` + schema + `}]`
	if err := ValidateTools(gjson.Parse(raw)); err == nil {
		t.Fatalf("expected error for nesting depth exceeding limit")
	}
}

func TestCacheLastHashFastPath(t *testing.T) {
	c := NewCache(4)
	hash := HashToolSet([]byte("tools-v1"))
	c.Put(hash, []byte("constructed"))

	v, ok := c.Get(hash)
	if !ok || string(v) != "constructed" {
		t.Fatalf("expected cache hit via fast path, got ok=%v v=%q", ok, v)
	}
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected oldest entry to be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestHashToolSetIsStable(t *testing.T) {
	raw := []byte(`[{"name":"T"}]`)
	if HashToolSet(raw) != HashToolSet(raw) {
		t.Errorf("expected identical input to hash identically")
	}
}
