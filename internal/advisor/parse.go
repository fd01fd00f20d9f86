package advisor

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"intraday/internal/pkg/jsonutil"
)

const recommendationSchema = `{
  "type": "object",
  "required": ["recommended_strategy_id", "confidence"],
  "properties": {
    "recommended_strategy_id": {"type": ["string", "null"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("recommendation.json", strings.NewReader(recommendationSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaVal, schemaErr = compiler.Compile("recommendation.json")
	})
	return schemaVal, schemaErr
}

// ParseRecommendation 解析模型回复；"none"/null/空 ID 返回 nil 表示不切换。
func ParseRecommendation(raw string) (*Recommendation, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok || !gjson.Valid(obj) {
		return nil, fmt.Errorf("no json object in response")
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	res := gjson.Parse(obj)
	id := strings.ToLower(strings.TrimSpace(res.Get("recommended_strategy_id").String()))
	if id == "" || id == "none" {
		return nil, nil
	}
	return &Recommendation{
		StrategyID: id,
		Confidence: res.Get("confidence").Float(),
		Reasoning:  strings.TrimSpace(res.Get("reasoning").String()),
	}, nil
}
