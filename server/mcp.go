package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/booster/host"
)

// RegisterMCP registers the boost tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerListTool(srv)
	s.registerOpenTool(srv)
	s.registerCommandTool(srv)
	s.registerStatusTool(srv)
	s.registerJournalTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// registerTool adds tool to srv. decode fills the typed request from the
// call arguments; a decode or endpoint error is reported as a tool error
// result, the response is returned as JSON text.
func registerTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if args := req.Params.Arguments; len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}
		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// lookup resolves a document id, empty meaning the active document.
func (s *Server) lookup(id string) (*host.Document, error) {
	if id == "" {
		id = host.ActiveID
	}
	return s.opts.Host.Get(id)
}

type emptyReq struct{}

func (s *Server) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "boost_list_documents",
		Description: "List the documents boost controls, with their URL and agent state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ *emptyReq) (any, error) {
		out := []host.Info{}
		for _, d := range s.opts.Host.List() {
			info, err := d.Info(ctx)
			if err != nil {
				continue
			}
			info.Active = s.opts.Host.IsActive(d.ID())
			out = append(out, info)
		}
		return map[string]any{"documents": out}, nil
	})
}

type openReq struct {
	URL string `json:"url"`
}

func (s *Server) registerOpenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "boost_open_document",
		Description: "Open a URL in a new browser tab and control it.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to open"},
		}, []string{"url"}),
	}
	registerTool(srv, tool, func(ctx context.Context, r *openReq) (any, error) {
		if r.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		d, err := s.opts.Host.Open(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": d.ID()}, nil
	})
}

type commandReq struct {
	Document string `json:"document"`
	Command  string `json:"command"`
	Args
}

func (s *Server) registerCommandTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "boost_command",
		Description: "Send a boost command to a document (the active one when document is empty). Commands: " +
			strings.Join(Commands, ", ") + ".",
		InputSchema: inputSchema(map[string]any{
			"document": map[string]any{"type": "string", "description": "Document id; empty for the active document"},
			"command":  map[string]any{"type": "string", "enum": Commands},
			"color":    map[string]any{"type": "string", "description": "Background colour for background"},
			"font":     map[string]any{"type": "string", "description": "Font family for font"},
			"scale":    map[string]any{"type": "number", "description": "Scale factor for scale"},
			"delta":    map[string]any{"type": "number", "description": "Scale increment for adjust-scale"},
			"mode":     map[string]any{"type": "string", "enum": []string{"id", "class"}, "description": "Zapper mode for hide and mode"},
		}, []string{"command"}),
	}
	registerTool(srv, tool, func(_ context.Context, r *commandReq) (any, error) {
		d, err := s.lookup(r.Document)
		if err != nil {
			return nil, err
		}
		return run(s.opts.Controller, d, r.Command, r.Args)
	})
}

func (s *Server) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "boost_controller_status",
		Description: "Report the controller's last known scale, zapper mode and presets.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(context.Context, *emptyReq) (any, error) {
		return s.opts.Controller.Status(), nil
	})
}

type journalReq struct {
	Document string `json:"document"`
	Limit    int    `json:"limit"`
}

func (s *Server) registerJournalTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "boost_journal",
		Description: "List the commands a document handled, newest first, with their outcome.",
		InputSchema: inputSchema(map[string]any{
			"document": map[string]any{"type": "string", "description": "Document id; empty for the active document"},
			"limit":    map[string]any{"type": "integer", "description": "Maximum entries (default 100)"},
		}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, r *journalReq) (any, error) {
		if s.opts.Journal == nil {
			return nil, fmt.Errorf("journal disabled")
		}
		d, err := s.lookup(r.Document)
		if err != nil {
			return nil, err
		}
		entries, err := s.opts.Journal.List(ctx, d.ID(), r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries}, nil
	})
}
