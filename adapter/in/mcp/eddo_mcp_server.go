package mcp

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eddo_server/core/tools"
	"eddo_server/pkg/logger"
	"eddo_server/pkg/telemetry"
)

// SessionFactory binds an authenticated identity to the per-user services a
// tool call needs.
type SessionFactory func(identity *Identity) *tools.Session

// Server exposes the tool catalog over the MCP streamable HTTP transport.
// Every request is authenticated on arrival; the per-request SDK server
// closes over the resolved session, so tool handlers never consult shared
// mutable state.
type Server struct {
	catalog  *tools.Registry
	gate     *AuthGate
	sessions SessionFactory
	version  string
	log      *logger.Logger
}

func NewServer(catalog *tools.Registry, gate *AuthGate, sessions SessionFactory, version string) *Server {
	return &Server{
		catalog:  catalog,
		gate:     gate,
		sessions: sessions,
		version:  version,
		log:      logger.Default().WithField("component", "mcp_server"),
	}
}

// Handler returns the net/http handler for the /mcp endpoint.
func (s *Server) Handler() http.Handler {
	return sdk.NewStreamableHTTPHandler(func(r *http.Request) *sdk.Server {
		// The caller's traceparent is captured here and re-attached inside
		// each tool execution, which runs on the SDK's own context.
		parent := ExtractTraceContext(context.Background(), r)

		identity, authErr := s.gate.Authenticate(r.Context(), r)
		var sess *tools.Session
		if authErr == nil {
			sess = s.sessions(identity)
		}
		return s.buildServer(sess, authErr, parent)
	}, &sdk.StreamableHTTPOptions{Stateless: true})
}

// buildServer assembles the per-request SDK server over the fixed catalog.
func (s *Server) buildServer(sess *tools.Session, authErr error, parent context.Context) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{
		Name:    "eddo-server",
		Version: s.version,
	}, nil)

	for _, tool := range s.catalog.List() {
		name := tool.Name()
		server.AddTool(&sdk.Tool{
			Name:        name,
			Description: tool.Description(),
			InputSchema: paramSchema(tool.Parameters()),
		}, func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			var args map[string]any
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return envelopeResult(tools.ErrorEnvelope(name, err))
				}
			}
			return envelopeResult(s.execute(ctx, parent, sess, authErr, name, args))
		})
	}
	return server
}

// execute runs one tool call inside a span parented to the caller's trace
// context.
func (s *Server) execute(ctx, parent context.Context, sess *tools.Session, authErr error, name string, args map[string]any) *tools.Envelope {
	if sc := trace.SpanContextFromContext(parent); sc.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}
	ctx, span := telemetry.Tracer().Start(ctx, "mcp.tool."+name)
	defer span.End()

	span.SetAttributes(attribute.String("mcp.tool", name))
	if sess != nil {
		span.SetAttributes(
			attribute.String("user.id", sess.UserID),
			attribute.String("user.name", sess.Username),
		)
	}

	var envelope *tools.Envelope
	if authErr != nil {
		envelope = tools.ErrorEnvelope(name, authErr)
	} else {
		envelope = s.catalog.Execute(ctx, sess, name, args)
	}

	if envelope.IsError() {
		span.SetStatus(codes.Error, envelope.Error)
		if errType, ok := envelope.Metadata["error_type"].(string); ok {
			span.SetAttributes(attribute.String("mcp.error_type", errType))
		}
		s.log.WithFields(map[string]any{"tool": name, "error": envelope.Error}).Warn("tool call failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return envelope
}

// envelopeResult serializes the envelope as the tool's text content.
func envelopeResult(envelope *tools.Envelope) (*sdk.CallToolResult, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(raw)}},
		IsError: envelope.IsError(),
	}, nil
}

// paramSchema converts a tool's parameter specs into the JSON schema handed
// to MCP clients.
func paramSchema(specs []tools.ParameterSpec) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(specs))
	var required []string
	for _, spec := range specs {
		prop := &jsonschema.Schema{
			Type:        spec.Type,
			Description: spec.Description,
		}
		if spec.Type == "array" {
			prop.Items = &jsonschema.Schema{Type: "string"}
		}
		if len(spec.Enum) > 0 {
			enum := make([]any, 0, len(spec.Enum))
			for _, e := range spec.Enum {
				enum = append(enum, e)
			}
			prop.Enum = enum
		}
		if spec.Default != nil {
			if raw, err := json.Marshal(spec.Default); err == nil {
				prop.Default = raw
			}
		}
		properties[spec.Name] = prop
		if spec.Required {
			required = append(required, spec.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}
