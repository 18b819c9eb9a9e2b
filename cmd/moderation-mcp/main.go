// Command moderation-mcp serves the moderation tools over MCP stdio.
package main

import (
	"log/slog"
	"os"

	"companion/app/service/tools"
	"companion/app/util/mylog"

	"github.com/mark3labs/mcp-go/server"
)

const version = "1.0.0"

func main() {
	// logs go to stderr, stdout carries the protocol
	mylog.Preinit()

	if err := server.ServeStdio(tools.NewServer(version)); err != nil {
		slog.Error("MCP server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
