package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/tracelens/internal/model"
)

const (
	recentSessionsURI      = "tracelens://sessions/recent"
	sessionMetricsPrefix   = "tracelens://session/"
	sessionMetricsSuffix   = "/metrics"
	recentSessionsPageSize = 20
)

func (s *Server) registerResources() {
	// tracelens://sessions/recent: most recently updated sessions.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			recentSessionsURI,
			"Recent Sessions",
			mcplib.WithResourceDescription("Most recently updated voice-agent sessions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentSessions,
	)

	// tracelens://session/{id}/metrics: aggregate metrics of one session.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			sessionMetricsPrefix+"{id}"+sessionMetricsSuffix,
			"Session Metrics",
			mcplib.WithTemplateDescription("Span counts, errors and durations for one session"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleSessionMetricsResource,
	)
}

func (s *Server) handleRecentSessions(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	list, _, err := s.sessions.ListSessions(ctx, model.SessionFilter{Limit: recentSessionsPageSize})
	if err != nil {
		return nil, fmt.Errorf("mcp: recent sessions: %w", err)
	}
	if list == nil {
		list = []model.SessionSummary{}
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal sessions: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      recentSessionsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSessionMetricsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	sessionID, err := parseSessionMetricsURI(uri)
	if err != nil {
		return nil, err
	}

	m, err := s.sessions.SessionMetrics(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mcp: session metrics: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal metrics: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseSessionMetricsURI extracts the session id from
// tracelens://session/{id}/metrics.
func parseSessionMetricsURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, sessionMetricsPrefix) || !strings.HasSuffix(uri, sessionMetricsSuffix) ||
		len(uri) < len(sessionMetricsPrefix)+len(sessionMetricsSuffix) {
		return "", fmt.Errorf("mcp: invalid session metrics URI: %s", uri)
	}
	id := uri[len(sessionMetricsPrefix) : len(uri)-len(sessionMetricsSuffix)]
	if id == "" {
		return "", fmt.Errorf("mcp: invalid session metrics URI: empty session_id")
	}
	if err := model.ValidateID("session_id", id); err != nil {
		return "", fmt.Errorf("mcp: invalid session metrics URI: %w", err)
	}
	return id, nil
}
