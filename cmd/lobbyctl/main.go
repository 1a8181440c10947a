// Package main is a small operator client for the lobby. It sends one
// control request, or lists recent cycles from the audit log.
//
// Usage:
//
//	lobbyctl [-addr host:port] login <identity>
//	lobbyctl [-addr host:port] logoff <identity>
//	lobbyctl [-addr host:port] finish
//	lobbyctl [-config file] history [limit]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/cory-johannsen/wamlobby/internal/config"
	"github.com/cory-johannsen/wamlobby/internal/frontend/control"
	"github.com/cory-johannsen/wamlobby/internal/lobby"
	"github.com/cory-johannsen/wamlobby/internal/protocol"
	"github.com/cory-johannsen/wamlobby/internal/storage/postgres"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8888", "lobby control address")
	configPath := flag.String("config", "", "configuration file for the history command")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "login":
		requireArgs(args, 2)
		reply, err := control.Request(ctx, *addr, protocol.Login(args[1]))
		if err != nil {
			log.Fatalf("login: %v", err)
		}
		line, err := formatLogin(reply)
		if err != nil {
			log.Fatalf("login: %v", err)
		}
		fmt.Fprintln(os.Stdout, line)
	case "logoff":
		requireArgs(args, 2)
		if _, err := control.Request(ctx, *addr, protocol.Logoff(args[1])); err != nil {
			log.Fatalf("logoff: %v", err)
		}
	case "finish":
		if _, err := control.Request(ctx, *addr, protocol.Finish()); err != nil {
			log.Fatalf("finish: %v", err)
		}
	case "history":
		limit := 10
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				log.Fatalf("history: invalid limit %q", args[1])
			}
			limit = n
		}
		if err := history(ctx, *configPath, limit); err != nil {
			log.Fatalf("history: %v", err)
		}
	default:
		usage()
	}
}

func history(ctx context.Context, configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	cycles, err := postgres.NewCycleRepository(pool.DB()).Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, c := range cycles {
		fmt.Fprintln(os.Stdout, formatCycle(c))
	}
	return nil
}

// formatLogin renders a login reply, splitting a granted endpoint into its
// parts.
func formatLogin(reply protocol.Message) (string, error) {
	if reply.Type != protocol.TypeLoginResponse {
		return string(reply.Type), nil
	}
	ep, err := lobby.ParseEndpoint(reply.Payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s host=%s port=%d group=%s", reply.Type, ep.Host, ep.Port, ep.Group), nil
}

func formatCycle(c postgres.Cycle) string {
	state, players := "active", "-"
	if c.Finished() {
		state = "finished " + c.FinishedAt.Format(time.RFC3339)
	}
	if c.Players != nil {
		players = strconv.Itoa(*c.Players)
	}
	return fmt.Sprintf("%s  %s  %s  %s  players=%s",
		c.ID, c.StartedAt.Format(time.RFC3339), c.Endpoint, state, players)
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lobbyctl [-addr host:port] login <identity> | logoff <identity> | finish")
	fmt.Fprintln(os.Stderr, "       lobbyctl [-config file] history [limit]")
	os.Exit(2)
}
