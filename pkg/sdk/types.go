package sdk

// SchemaInfo describes the MCP schema version, the tools the server
// registers and any deprecations.
type SchemaInfo struct {
	SchemaVersion string            `json:"schema_version"`
	ServerVersion string            `json:"server_version"`
	Tools         []string          `json:"tools"`
	Deprecated    []DeprecatedField `json:"deprecated"`
}

// HasTool reports whether the server registers the named tool.
func (s SchemaInfo) HasTool(name string) bool {
	for _, t := range s.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// DeprecatedField records a field or tool that has been deprecated.
type DeprecatedField struct {
	Tool      string `json:"tool"`
	Field     string `json:"field"`
	Since     string `json:"since"`
	RemovedIn string `json:"removed_in"`
	Migration string `json:"migration"`
}
