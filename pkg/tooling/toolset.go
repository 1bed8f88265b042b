package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// Toolset exposes the shopping tools bound to one UCP server.
type Toolset struct {
	shop Shop
}

func NewToolset(shop Shop) *Toolset {
	return &Toolset{shop: shop}
}

// Names lists the tool names in the order they are offered to the model.
func Names() []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.name)
	}
	return names
}

func (ts *Toolset) Definitions() []openai.ChatCompletionToolUnionParam {
	defs := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.tool.param)
	}
	return defs
}

// Call runs the named tool with its JSON arguments and returns the compact
// JSON response of the shop.
func (ts *Toolset) Call(ctx context.Context, name, arguments string) (string, error) {
	for _, t := range tools {
		if t.name != name {
			continue
		}
		body, err := t.tool.handler(ctx, ts.shop, arguments)
		if err != nil {
			return "", err
		}
		var out bytes.Buffer
		if err := json.Compact(&out, body); err != nil {
			return string(body), nil
		}
		return out.String(), nil
	}
	return "", fmt.Errorf("unknown tool %q", name)
}
