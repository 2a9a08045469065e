package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guseggert/procagent/agent"
	"github.com/guseggert/procagent/agent/discovery"
	"github.com/guseggert/procagent/agent/session"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "procagent",
		Usage: "remote process control over TCP, with UDP discovery",
		Commands: []*cli.Command{
			serveCommand,
			discoverCommand,
			sendCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the agent",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "listen-addr",
			Usage:   "The address for the TCP command server to listen on.",
			Value:   agent.DefaultListenAddr,
			EnvVars: []string{"PROCAGENT_LISTEN_ADDR"},
		},
		&cli.StringFlag{
			Name:    "discovery-addr",
			Usage:   "The UDP address to answer discovery probes on.",
			Value:   agent.DefaultDiscoveryAddr,
			EnvVars: []string{"PROCAGENT_DISCOVERY_ADDR"},
		},
		&cli.BoolFlag{
			Name:    "no-discovery",
			Usage:   "Don't answer discovery probes.",
			EnvVars: []string{"PROCAGENT_NO_DISCOVERY"},
		},
		&cli.StringFlag{
			Name:    "gateway-addr",
			Usage:   "If set, serve sessions over WebSockets on this address.",
			EnvVars: []string{"PROCAGENT_GATEWAY_ADDR"},
		},
		&cli.Int64Flag{
			Name:    "max-sessions",
			Usage:   "Maximum concurrent sessions, 0 for unbounded. Connections over the limit are closed.",
			EnvVars: []string{"PROCAGENT_MAX_SESSIONS"},
		},
		&cli.DurationFlag{
			Name:    "idle-timeout",
			Usage:   "Close sessions that are idle for this long, 0 to never close.",
			EnvVars: []string{"PROCAGENT_IDLE_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "framing",
			Usage:   "Command framing. One of [chunk,line].",
			Value:   string(session.FramingChunk),
			EnvVars: []string{"PROCAGENT_FRAMING"},
		},
		&cli.IntFlag{
			Name:    "read-limit",
			Usage:   "Maximum bytes per command.",
			Value:   session.DefaultReadLimit,
			EnvVars: []string{"PROCAGENT_READ_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "allowlist",
			Usage:   "Path to a file of program names START may run, one per line.",
			EnvVars: []string{"PROCAGENT_ALLOWLIST"},
		},
		&cli.StringFlag{
			Name:    "pid-file",
			Usage:   "Path to write the agent's PID to.",
			EnvVars: []string{"PROCAGENT_PID_FILE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "The minimum log level.",
			Value:   "info",
			EnvVars: []string{"PROCAGENT_LOG_LEVEL"},
		},
	},
	Action: func(ctx *cli.Context) error {
		level, err := zapcore.ParseLevel(ctx.String("log-level"))
		if err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}
		framing, err := session.ParseFraming(ctx.String("framing"))
		if err != nil {
			return err
		}

		opts := []agent.Option{
			agent.WithLogLevel(level),
			agent.WithListenAddr(ctx.String("listen-addr")),
			agent.WithDiscoveryAddr(ctx.String("discovery-addr")),
			agent.WithGatewayAddr(ctx.String("gateway-addr")),
			agent.WithMaxSessions(ctx.Int64("max-sessions")),
			agent.WithIdleTimeout(ctx.Duration("idle-timeout")),
			agent.WithFraming(framing),
			agent.WithReadLimit(ctx.Int("read-limit")),
			agent.WithAllowList(ctx.String("allowlist")),
			agent.WithPIDFile(ctx.String("pid-file")),
		}
		if ctx.Bool("no-discovery") {
			opts = append(opts, agent.WithoutDiscovery())
		}

		a, err := agent.NewAgent(opts...)
		if err != nil {
			return fmt.Errorf("building agent: %w", err)
		}

		sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(sigCtx)
	},
}

var discoverCommand = &cli.Command{
	Name:  "discover",
	Usage: "find agents on the local network",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Usage:   "The address to send the discovery probe to.",
			Value:   discovery.DefaultTarget,
			EnvVars: []string{"PROCAGENT_DISCOVERY_TARGET"},
		},
		&cli.DurationFlag{
			Name:    "window",
			Usage:   "How long to collect replies.",
			Value:   discovery.DefaultWindow,
			EnvVars: []string{"PROCAGENT_DISCOVERY_WINDOW"},
		},
	},
	Action: func(ctx *cli.Context) error {
		servers, err := discovery.Discover(ctx.Context, ctx.String("target"), ctx.Duration("window"))
		if err != nil {
			return err
		}
		for _, s := range servers {
			fmt.Println(s.String())
		}
		return nil
	},
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "send one command to an agent and print the reply",
	ArgsUsage: "<command...>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "The agent's TCP address. If empty, the first discovered agent is used.",
			EnvVars: []string{"PROCAGENT_ADDR"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for the reply.",
			Value: 10 * time.Second,
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return errors.New("no command given")
		}
		line := strings.Join(ctx.Args().Slice(), " ")

		addr := ctx.String("addr")
		if addr == "" {
			servers, err := discovery.Discover(ctx.Context, discovery.DefaultTarget, discovery.DefaultWindow)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				return errors.New("no agents found")
			}
			addr = servers[0].String()
		}

		reqCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
		defer cancel()

		client, err := agent.Dial(reqCtx, addr)
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.Send(reqCtx, line)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}
