// Package sdk provides a typed Go client for the SitePulse MCP server.
//
// The client wraps mcp-go/client.CallTool with one method per MCP tool,
// decoding results into the same types the server produces, and retries
// transport failures via fortify.
//
// Usage:
//
//	transport, _ := client.NewStdioTransport("sitepulse", "mcp")
//	c := sdk.NewClient(transport)
//	defer c.Close()
//
//	if _, err := c.Initialize(ctx); err != nil { ... }
//	report, _ := c.PortfolioHealth(ctx, false)
//	fmt.Println(report.Summary.ByHealth)
package sdk
