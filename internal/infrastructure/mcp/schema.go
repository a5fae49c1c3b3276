package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
)

// SchemaVersion is the current MCP tool schema version (semver).
const SchemaVersion = "1.0.0"

const (
	schemaURI       = "sitepulse://schema"
	bundleSchemaURI = "sitepulse://bundle-schema"
)

// DeprecatedField records a field or tool that has been deprecated.
type DeprecatedField struct {
	Tool      string `json:"tool"`
	Field     string `json:"field"`
	Since     string `json:"since"`
	RemovedIn string `json:"removed_in"`
	Migration string `json:"migration"`
}

// deprecatedFields returns the list of currently deprecated fields.
func deprecatedFields() []DeprecatedField {
	return []DeprecatedField{}
}

type schemaResponse struct {
	SchemaVersion string            `json:"schema_version"`
	ServerVersion string            `json:"server_version"`
	Tools         []string          `json:"tools"`
	Deprecated    []DeprecatedField `json:"deprecated"`
}

func (s *Server) registerSchemaResource() {
	s.mcpServer.Resource(schemaURI).
		Name(schemaURI).
		Description("MCP tool schema version and deprecation info").
		MimeType("application/json").
		Handler(func(_ context.Context, _ string, _ map[string]string) (*mcplib.ResourceContent, error) {
			data, err := s.schemaJSON()
			if err != nil {
				return nil, err
			}
			return &mcplib.ResourceContent{
				URI:      schemaURI,
				MimeType: "application/json",
				Text:     string(data),
			}, nil
		})

	s.mcpServer.Resource(bundleSchemaURI).
		Name(bundleSchemaURI).
		Description("JSON Schema for the feed bundle accepted by evaluate_bundle").
		MimeType("application/schema+json").
		Handler(func(_ context.Context, _ string, _ map[string]string) (*mcplib.ResourceContent, error) {
			return &mcplib.ResourceContent{
				URI:      bundleSchemaURI,
				MimeType: "application/schema+json",
				Text:     feeds.BundleSchema(),
			}, nil
		})
}

func (s *Server) schemaJSON() ([]byte, error) {
	resp := schemaResponse{
		SchemaVersion: SchemaVersion,
		ServerVersion: Version,
		Deprecated:    deprecatedFields(),
	}
	for _, t := range s.mcpServer.Tools() {
		resp.Tools = append(resp.Tools, t.Name)
	}
	return json.Marshal(resp)
}
