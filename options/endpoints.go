package options

import (
	"context"

	"github.com/radicalgizmos-matt/li-rad-libs/kit"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

type substitutionsResponse struct {
	Substitutions substitute.RuleSet `json:"substitutions"`
}

type saveRequest struct {
	Substitutions substitute.RuleSet `json:"substitutions"`
}

type previewRequest struct {
	Text string `json:"text"`
	// Substitutions to try; absent means the saved collection.
	Substitutions substitute.RuleSet `json:"substitutions,omitempty"`
}

// endpoints are shared by the JSON API and the MCP tools.
type endpoints struct {
	list, save, preview kit.Endpoint
}

func (s *Service) endpoints() endpoints {
	wrap := func(op string) kit.Middleware {
		if s.audit == nil {
			return kit.Logging(s.logger, op)
		}
		return kit.Chain(kit.Logging(s.logger, op), s.audit.Middleware(op))
	}
	return endpoints{
		list: kit.Logging(s.logger, "list")(func(ctx context.Context, _ any) (any, error) {
			rules, err := s.List(ctx)
			if err != nil {
				return nil, err
			}
			return substitutionsResponse{Substitutions: rules}, nil
		}),
		save: wrap("save")(func(ctx context.Context, req any) (any, error) {
			r := req.(*saveRequest)
			rules, err := s.Save(ctx, r.Substitutions)
			if err != nil {
				return nil, err
			}
			return substitutionsResponse{Substitutions: rules}, nil
		}),
		preview: wrap("preview")(func(ctx context.Context, req any) (any, error) {
			r := req.(*previewRequest)
			return s.Preview(ctx, r.Text, r.Substitutions)
		}),
	}
}
