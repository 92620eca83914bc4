// Package schema implements the tool-declaration validation and two-level
// cache described in spec.md §4.6.
//
// Grounded on original_source/src/validation.rs (validate_tool_schema /
// validate_json_schema / validate_tools) and
// original_source/src/transform/validation.rs (request-level bound
// checks), reimplemented in the teacher's idiom: plain functions returning
// error, operating on gjson.Result rather than a typed schema struct.
package schema

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/tyrchen/claude-code-proxy/internal/apperr"
)

const (
	maxToolNameLen = 64
	maxToolCount   = 128
	maxSchemaDepth = 10
)

var validJSONSchemaTypes = map[string]bool{
	"object": true, "array": true, "string": true,
	"number": true, "integer": true, "boolean": true, "null": true,
}

// ValidateTools runs every spec.md §4.6 check over a raw downstream tools
// array and returns an invalid_request error pinpointing the first
// offending tool, or nil if every tool passes.
func ValidateTools(toolsJSON gjson.Result) error {
	tools := toolsJSON.Array()
	if len(tools) > maxToolCount {
		return apperr.Newf(apperr.KindInvalidRequest, "tools: %d tools exceeds maximum of %d", len(tools), maxToolCount)
	}

	seen := make(map[string]bool, len(tools))
	for i, tool := range tools {
		name := tool.Get("name").String()
		if err := validateTool(tool, i); err != nil {
			return err
		}
		if seen[name] {
			return apperr.Newf(apperr.KindInvalidRequest, "tools[%d]: duplicate tool name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}

func validateTool(tool gjson.Result, index int) error {
	name := tool.Get("name")
	if !name.Exists() || name.String() == "" {
		return apperr.Newf(apperr.KindInvalidRequest, "tools[%d]: name is required", index)
	}
	if len(name.String()) > maxToolNameLen {
		return apperr.Newf(apperr.KindInvalidRequest, "tools[%d]: name %q exceeds %d characters", index, name.String(), maxToolNameLen)
	}

	desc := tool.Get("description")
	if !desc.Exists() || desc.String() == "" {
		return apperr.Newf(apperr.KindInvalidRequest, "tools[%d]: description is required", index)
	}

	schemaField := tool.Get("input_schema")
	if !schemaField.Exists() {
		return apperr.Newf(apperr.KindInvalidRequest, "tools[%d]: input_schema is required", index)
	}
	if outer := schemaField.Get("type").String(); outer != "object" {
		return apperr.Newf(apperr.KindInvalidRequest, "tools[%d]: input_schema.type must be \"object\", got %q", index, outer)
	}

	return validateJSONSchema(schemaField, 0, fmt.Sprintf("tools[%d].input_schema", index))
}

// validateJSONSchema recursively checks nested-depth, type validity,
// enum/string-type consistency, and finite numeric bounds, mirroring
// original_source's validate_json_schema.
func validateJSONSchema(node gjson.Result, depth int, path string) error {
	if depth > maxSchemaDepth {
		return apperr.Newf(apperr.KindInvalidRequest, "%s: nested depth exceeds %d", path, maxSchemaDepth)
	}

	if t := node.Get("type"); t.Exists() {
		typeName := t.String()
		if !validJSONSchemaTypes[typeName] {
			return apperr.Newf(apperr.KindInvalidRequest, "%s: unsupported type %q", path, typeName)
		}
		if node.Get("enum").Exists() && typeName != "string" {
			return apperr.Newf(apperr.KindInvalidRequest, "%s: enum is only valid alongside type \"string\"", path)
		}
	}

	if min := node.Get("minimum"); min.Exists() && !isFinite(min.Float()) {
		return apperr.Newf(apperr.KindInvalidRequest, "%s: minimum must be finite", path)
	}
	if max := node.Get("maximum"); max.Exists() && !isFinite(max.Float()) {
		return apperr.Newf(apperr.KindInvalidRequest, "%s: maximum must be finite", path)
	}
	if min, max := node.Get("minimum"), node.Get("maximum"); min.Exists() && max.Exists() && min.Float() > max.Float() {
		return apperr.Newf(apperr.KindInvalidRequest, "%s: minimum %v exceeds maximum %v", path, min.Float(), max.Float())
	}

	if props := node.Get("properties"); props.Exists() {
		var err error
		props.ForEach(func(key, value gjson.Result) bool {
			if e := validateJSONSchema(value, depth+1, path+".properties."+key.String()); e != nil {
				err = e
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}

	if items := node.Get("items"); items.Exists() {
		if err := validateJSONSchema(items, depth+1, path+".items"); err != nil {
			return err
		}
	}

	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
