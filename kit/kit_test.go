package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+">")
				resp, err := next(ctx, req)
				order = append(order, "<"+name)
				return resp, err
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
	if got := strings.Join(order, " "); got != "a> b> endpoint <b <a" {
		t.Fatalf("order = %q", got)
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(context.Context, any) (any, error) { return nil, errFail }
	if _, err := Chain()(base)(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("err = %v", err)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := Logging(logger, "list")(func(context.Context, any) (any, error) { return 1, nil })
	fail := Logging(logger, "save")(func(context.Context, any) (any, error) { return nil, errors.New("boom") })

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "req_1")
	ok(ctx, nil)
	fail(ctx, nil)

	out := buf.String()
	for _, want := range []string{`"op":"list"`, `"transport":"mcp"`, `"request_id":"req_1"`, `"level":"WARN"`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport = %q", v)
	}
	if GetRequestID(ctx) != "" || GetUserID(ctx) != "" {
		t.Fatal("expected empty defaults")
	}
	ctx = WithUserID(ctx, "admin")
	if v := GetUserID(ctx); v != "admin" {
		t.Fatalf("user = %q", v)
	}
}

type echoReq struct {
	Text string `json:"text"`
}

func session(t *testing.T) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}

	RegisterMCPTool(srv, &mcp.Tool{Name: "echo", InputSchema: schema},
		func(ctx context.Context, req any) (any, error) {
			r := req.(*echoReq)
			if r.Text == "" {
				return nil, errors.New("text is required")
			}
			return map[string]string{"text": r.Text, "transport": GetTransport(ctx)}, nil
		},
		DecodeArgs[echoReq])

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	sess, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestRegisterMCPTool(t *testing.T) {
	sess := session(t)

	res, err := sess.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text != `{"text":"hi","transport":"mcp"}` {
		t.Fatalf("text = %s", text)
	}
}

func TestRegisterMCPTool_EndpointError(t *testing.T) {
	sess := session(t)

	res, err := sess.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if text := res.Content[0].(*mcp.TextContent).Text; !strings.Contains(text, "text is required") {
		t.Fatalf("text = %s", text)
	}
}
