package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"NgrokBoot/pkg/api"
	"NgrokBoot/pkg/client"
	"NgrokBoot/pkg/configs"
	"NgrokBoot/pkg/controller/bootstrap"
	"NgrokBoot/pkg/provision"

	"github.com/pingcap-incubator/tinykv/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		sig := <-c
		log.Infof("received %s, cancelling", sig)
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// env is built once per invocation in the app's Before hook
type env struct {
	cfg         *configs.Config
	client      *client.NgrokClient
	provisioner *provision.Provisioner
	sequencer   *bootstrap.Sequencer
}

func newApp() *cli.App {
	e := &env{}
	return &cli.App{
		Name:  "ngrok_client",
		Usage: "query the local ngrok agent, starting or installing it when needed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides config)"},
		},
		Before: func(c *cli.Context) error {
			return e.setup(c.String("config"), c.String("log-level"))
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list tunnels, bootstrapping the agent first",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "print raw JSON"}},
				Action: func(c *cli.Context) error {
					res, err := e.bootstrap(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(c.App.Writer, res.Tunnels)
					}
					printTunnels(c.App.Writer, res.Tunnels.Tunnels)
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "show one tunnel",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					name, err := requireArg(c)
					if err != nil {
						return err
					}
					tunnel, err := e.client.GetTunnel(c.Context, name)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, tunnel)
				},
			},
			{
				Name:  "start",
				Usage: "start a tunnel, bootstrapping the agent first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "proto", Value: "http", Usage: "http, tcp or tls"},
					&cli.StringFlag{Name: "addr", Required: true, Usage: "local port or host:port to forward to"},
					&cli.StringFlag{Name: "domain"},
				},
				Action: func(c *cli.Context) error {
					if _, err := e.bootstrap(c.Context); err != nil {
						return err
					}
					tunnel, err := e.client.StartTunnel(c.Context, &api.StartTunnelRequest{
						Name:   c.String("name"),
						Proto:  c.String("proto"),
						Addr:   c.String("addr"),
						Domain: c.String("domain"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, tunnel.PublicURL)
					return nil
				},
			},
			{
				Name:      "stop",
				Usage:     "stop a tunnel",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					name, err := requireArg(c)
					if err != nil {
						return err
					}
					return e.client.StopTunnel(c.Context, name)
				},
			},
			{
				Name:  "bootstrap",
				Usage: "make sure the agent is installed and running",
				Action: func(c *cli.Context) error {
					res, err := e.bootstrap(c.Context)
					if err != nil {
						return err
					}
					if res.Process != nil {
						fmt.Fprintf(c.App.Writer, "agent started (pid %d)\n", res.Process.Pid)
					} else {
						fmt.Fprintln(c.App.Writer, "agent already running")
					}
					printTunnels(c.App.Writer, res.Tunnels.Tunnels)
					return nil
				},
			},
			{
				Name:  "install",
				Usage: "download the agent binary for this platform into the work dir",
				Action: func(c *cli.Context) error {
					path, err := e.provisioner.Provision(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, path)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "report agent processes and whether the API answers",
				Action: func(c *cli.Context) error {
					found, err := bootstrap.FindRunningAgents(e.cfg.ExecutableName())
					if err != nil {
						log.Warnf("process scan failed: %v", err)
					}
					for _, a := range found {
						fmt.Fprintf(c.App.Writer, "pid %d\t%s\n", a.Pid, a.Cmdline)
					}
					if err := e.client.Ping(c.Context); err != nil {
						fmt.Fprintf(c.App.Writer, "api %s: unavailable (%v)\n", e.client.BaseURL(), err)
						return nil
					}
					fmt.Fprintf(c.App.Writer, "api %s: ok\n", e.client.BaseURL())
					return nil
				},
			},
		},
	}
}

func (e *env) setup(configPath, logLevel string) error {
	cfg := configs.DefaultConfig()
	if configPath != "" {
		loaded, err := configs.LoadConfigFromYAML(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.SetLevelByString(cfg.LogLevel)

	ngrok, err := client.NewNgrokClient(cfg.APIAddr, client.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return errors.WithMessage(err, "invalid api_addr")
	}
	e.cfg = cfg
	e.client = ngrok
	e.provisioner = provision.NewProvisioner(cfg)
	e.sequencer = bootstrap.NewSequencer(cfg, ngrok, e.provisioner)
	return nil
}

func (e *env) bootstrap(ctx context.Context) (*bootstrap.Result, error) {
	res, err := e.sequencer.Bootstrap(ctx)
	if err != nil {
		if res != nil && res.Process != nil {
			log.Warnf("stopping agent pid %d started by this run", res.Process.Pid)
			if stopErr := res.Process.Stop(context.Background()); stopErr != nil {
				log.Warnf("stop agent: %v", stopErr)
			}
		}
		return nil, err
	}
	return res, nil
}

func requireArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.Errorf("%s needs exactly one argument: %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args().First(), nil
}

func printTunnels(w io.Writer, tunnels []api.Tunnel) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROTO\tPUBLIC URL\tADDR\tCONNS\tHTTP REQS")
	for _, t := range tunnels {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			t.Name, t.Proto, t.PublicURL, t.Config.Addr, t.Metrics.Conns.Count, t.Metrics.HTTP.Count)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
