package options

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/radicalgizmos-matt/li-rad-libs/kit"
)

// RegisterMCP registers the substitution tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	eps := s.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "radlibs_list_substitutions",
		Description: "List the saved substitution rules, in the order they are applied.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.list, func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name: "radlibs_save_substitutions",
		Description: "Replace the saved substitution rules. Every rule needs a target and at least one " +
			"replacement; nothing is saved if any rule is invalid.",
		InputSchema: inputSchema(map[string]any{
			"substitutions": rulesSchema,
		}, []string{"substitutions"}),
	}, eps.save, kit.DecodeArgs[saveRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "radlibs_preview",
		Description: "Rewrite a sample text with the saved rules, or with the given rules without saving them.",
		InputSchema: inputSchema(map[string]any{
			"text":          map[string]any{"type": "string", "description": "Text to rewrite"},
			"substitutions": rulesSchema,
		}, []string{"text"}),
	}, eps.preview, kit.DecodeArgs[previewRequest])
}

var rulesSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"probability":     map[string]any{"type": "number", "description": "Chance out of 100 (default 100)"},
			"target":          map[string]any{"type": "string"},
			"caseInsensitive": map[string]any{"type": "boolean"},
			"wholeWord":       map[string]any{"type": "boolean"},
			"replacements":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"target", "replacements"},
	},
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
