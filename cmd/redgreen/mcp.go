package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deixis/redgreen/internal/logging"
	rgmcp "github.com/deixis/redgreen/internal/mcp"
)

func mcpMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090); also serves /metrics")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(rgmcp.Instructions)
		return nil
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := rgmcp.NewServer(a.engine, a.history, rgmcp.WithLogger(logging.Component("mcp")))

	if *httpAddr != "" {
		return serveHTTP(ctx, server, a.registry, *httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, reg *prometheus.Registry, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log := logging.Component("mcp")
	log.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
