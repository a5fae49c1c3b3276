package mcp

import (
	"encoding/json"
	"sort"

	mcplib "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/schema"
)

// Tool groups. Each registered tool carries its group in Meta["tag"].
const (
	tagJobs       = "jobs"
	tagPortfolio  = "portfolio"
	tagEvaluation = "evaluation"
	defaultTag    = "sitepulse"
)

// OpenAPISpec is the subset of OpenAPI 3.0 needed to describe the tools.
type OpenAPISpec struct {
	OpenAPI string              `json:"openapi"`
	Info    OpenAPIInfo         `json:"info"`
	Tags    []OpenAPITag        `json:"tags,omitempty"`
	Paths   map[string]PathItem `json:"paths"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type OpenAPITag struct {
	Name string `json:"name"`
}

type PathItem struct {
	Post *Operation `json:"post,omitempty"`
}

// Operation describes one tool call. ReadOnly mirrors the tool's
// readOnlyHint annotation.
type Operation struct {
	OperationID string              `json:"operationId"`
	Summary     string              `json:"summary,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	ReadOnly    bool                `json:"x-read-only,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema any `json:"schema"`
}

type Response struct {
	Description string `json:"description"`
}

var toolResponses = map[string]Response{
	"200": {Description: "Tool result as JSON text content"},
	"400": {Description: "Missing or invalid arguments"},
	"500": {Description: "Feed source or history failure"},
}

// OpenAPI returns the OpenAPI 3.0 JSON document for this server.
func (s *Server) OpenAPI() ([]byte, error) {
	return GenerateOpenAPI(s.mcpServer)
}

// GenerateOpenAPI maps every registered tool to POST /tools/{name}. Tools
// whose arguments have properties get a JSON request body with the tool's
// input schema.
func GenerateOpenAPI(srv *mcplib.Server) ([]byte, error) {
	tools := srv.Tools()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	doc := OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "SitePulse MCP API",
			Description: "Earned-value and financial health tools for construction jobs.",
			Version:     SchemaVersion,
		},
		Paths: make(map[string]PathItem, len(tools)),
	}

	seen := map[string]bool{}
	for _, t := range tools {
		tag := toolTag(t.Meta)
		if !seen[tag] {
			seen[tag] = true
			doc.Tags = append(doc.Tags, OpenAPITag{Name: tag})
		}

		op := &Operation{
			OperationID: t.Name,
			Summary:     t.Description,
			Tags:        []string{tag},
			ReadOnly:    t.Annotations != nil && t.Annotations.ReadOnlyHint != nil && *t.Annotations.ReadOnlyHint,
			Responses:   toolResponses,
		}
		if hasProperties(t.InputSchema) {
			op.RequestBody = &RequestBody{
				Required: true,
				Content: map[string]MediaType{
					"application/json": {Schema: t.InputSchema},
				},
			}
		}
		doc.Paths["/tools/"+t.Name] = PathItem{Post: op}
	}

	return json.MarshalIndent(doc, "", "  ")
}

func toolTag(meta map[string]any) string {
	if tag, ok := meta["tag"].(string); ok && tag != "" {
		return tag
	}
	return defaultTag
}

// hasProperties reports whether an input schema declares any properties.
// mcp-go generates *schema.Schema; hand-built schemas arrive as maps.
func hasProperties(in any) bool {
	switch s := in.(type) {
	case nil:
		return false
	case *schema.Schema:
		return s != nil && len(s.Properties) > 0
	case map[string]any:
		props, _ := s["properties"].(map[string]any)
		return len(props) > 0
	default:
		data, err := json.Marshal(in)
		if err != nil {
			return false
		}
		var shape struct {
			Properties map[string]json.RawMessage `json:"properties"`
		}
		if err := json.Unmarshal(data, &shape); err != nil {
			return false
		}
		return len(shape.Properties) > 0
	}
}
