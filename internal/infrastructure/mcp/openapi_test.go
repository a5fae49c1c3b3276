package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/felixgeelhaar/mcp-go"
)

func decodeOpenAPI(t *testing.T, data []byte) OpenAPISpec {
	t.Helper()
	var doc OpenAPISpec
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestGenerateOpenAPI_RequestBodies(t *testing.T) {
	srv := mcplib.NewServer(mcplib.ServerInfo{Name: "test", Version: "0.1.0"})
	srv.Tool("with_args").
		Description("Takes a job").
		Handler(func(ctx context.Context, args struct {
			JobID string `json:"job_id" jsonschema:"description=The job ID"`
		}) (string, error) {
			return "ok", nil
		})
	srv.Tool("no_args").
		Description("No arguments").
		Handler(func(ctx context.Context, args struct{}) (string, error) {
			return "ok", nil
		})

	data, err := GenerateOpenAPI(srv)
	if err != nil {
		t.Fatalf("GenerateOpenAPI: %v", err)
	}
	doc := decodeOpenAPI(t, data)

	if doc.OpenAPI != "3.0.3" {
		t.Errorf("openapi: want 3.0.3, got %s", doc.OpenAPI)
	}
	if doc.Info.Version != SchemaVersion {
		t.Errorf("version: want %s, got %s", SchemaVersion, doc.Info.Version)
	}

	withArgs, ok := doc.Paths["/tools/with_args"]
	if !ok || withArgs.Post == nil {
		t.Fatalf("expected /tools/with_args, got %v", doc.Paths)
	}
	if withArgs.Post.Summary != "Takes a job" {
		t.Errorf("summary: want %q, got %q", "Takes a job", withArgs.Post.Summary)
	}
	if withArgs.Post.RequestBody == nil {
		t.Fatal("expected request body for tool with arguments")
	}
	body, _ := json.Marshal(withArgs.Post.RequestBody.Content["application/json"].Schema)
	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(body, &schema); err != nil {
		t.Fatal(err)
	}
	if _, ok := schema.Properties["job_id"]; !ok {
		t.Errorf("schema properties: want job_id, got %s", body)
	}

	noArgs := doc.Paths["/tools/no_args"]
	if noArgs.Post == nil {
		t.Fatal("expected /tools/no_args")
	}
	if noArgs.Post.RequestBody != nil {
		t.Error("expected no request body for tool without arguments")
	}
	if len(noArgs.Post.Tags) != 1 || noArgs.Post.Tags[0] != defaultTag {
		t.Errorf("tags: want [%s], got %v", defaultTag, noArgs.Post.Tags)
	}
}

func TestServer_OpenAPI(t *testing.T) {
	s := NewServer(&mockHealth{}, &mockPortfolio{}, quietLogger)
	data, err := s.OpenAPI()
	if err != nil {
		t.Fatalf("OpenAPI: %v", err)
	}
	doc := decodeOpenAPI(t, data)

	tests := []struct {
		tool     string
		tag      string
		hasBody  bool
		readOnly bool
	}{
		{"list_jobs", tagJobs, false, true},
		{"job_health", tagJobs, true, false},
		{"job_history", tagJobs, true, true},
		{"portfolio_health", tagPortfolio, true, false},
		{"evaluate_bundle", tagEvaluation, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			path, ok := doc.Paths["/tools/"+tt.tool]
			if !ok || path.Post == nil {
				t.Fatalf("expected /tools/%s", tt.tool)
			}
			if got := path.Post.RequestBody != nil; got != tt.hasBody {
				t.Errorf("request body: want %v, got %v", tt.hasBody, got)
			}
			if path.Post.ReadOnly != tt.readOnly {
				t.Errorf("read only: want %v, got %v", tt.readOnly, path.Post.ReadOnly)
			}
			if len(path.Post.Tags) != 1 || path.Post.Tags[0] != tt.tag {
				t.Errorf("tags: want [%s], got %v", tt.tag, path.Post.Tags)
			}
		})
	}

	if len(doc.Tags) != 3 {
		t.Errorf("document tags: want 3, got %v", doc.Tags)
	}
}

func TestHasProperties(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"map with properties", map[string]any{"properties": map[string]any{"a": map[string]any{}}}, true},
		{"map without properties", map[string]any{"type": "object"}, false},
		{"raw json", json.RawMessage(`{"properties":{"a":{}}}`), true},
	}
	for _, tt := range tests {
		if got := hasProperties(tt.in); got != tt.want {
			t.Errorf("%s: want %v, got %v", tt.name, tt.want, got)
		}
	}
}
