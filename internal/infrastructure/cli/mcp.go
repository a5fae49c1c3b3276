package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	inframcp "github.com/felixgeelhaar/sitepulse/internal/infrastructure/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpTransport string
	mcpAddr      string
	mcpOpenAPI   bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the SitePulse MCP server",
	Long: `Expose job and portfolio health to MCP clients.

Tools: list_jobs, job_health, portfolio_health, job_history, evaluate_bundle.
Use --openapi to print an OpenAPI document describing the tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := loadServices(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		inframcp.Version = Version
		inframcp.BuildCommit = Commit
		inframcp.BuildDate = Date
		server := inframcp.NewServer(env.services.Health, env.services.Portfolio, env.logger)

		if mcpOpenAPI {
			doc, err := server.OpenAPI()
			if err != nil {
				return fmt.Errorf("generate openapi: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		}
		if os.Getenv("SITEPULSE_SKIP_MCP_START") == "true" {
			return nil
		}

		switch strings.ToLower(mcpTransport) {
		case "stdio", "":
			err = server.ServeStdio(ctx)
		case "http":
			err = server.ServeHTTP(ctx, mcpAddr)
		case "ws", "websocket":
			err = server.ServeWebSocket(ctx, mcpAddr)
		case "grpc":
			err = server.ServeGRPC(ctx, mcpAddr)
		default:
			return NewCLIError(fmt.Sprintf("unsupported transport: %s", mcpTransport), "Use stdio, http, ws or grpc", nil)
		}
		if err != nil && !errors.Is(err, ctx.Err()) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport to use (stdio, http, ws, grpc)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", ":8090", "Address for http/ws/grpc transports")
	mcpCmd.Flags().BoolVar(&mcpOpenAPI, "openapi", false, "Print the OpenAPI document for the MCP tools and exit")
	RootCmd.AddCommand(mcpCmd)
}
