// cmd/orbd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"orb-server/internal/cdr"
	"orb-server/internal/client"
	"orb-server/internal/common/logging"
	"orb-server/internal/config"
	"orb-server/internal/db/bolt_tools"
	"orb-server/internal/db/redis_tools"
	"orb-server/internal/ior"
	"orb-server/internal/orb"
	"orb-server/internal/transport"
)

var (
	configFlag = cli.StringFlag{Name: "config, c", Usage: "orb config path (json)"}
	addrFlag   = cli.StringFlag{Name: "addr, a", Value: "127.0.0.1:2809", Usage: "orb address"}
)

func main() {
	app := cli.NewApp()
	app.Name = "orbd"
	app.Usage = "object request broker daemon"
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the orb",
			Flags:  []cli.Flag{configFlag},
			Action: serveCommand,
		},
		{
			Name:   "list",
			Usage:  "list initial references",
			Flags:  []cli.Flag{addrFlag},
			Action: listCommand,
		},
		{
			Name:      "get",
			Usage:     "print one initial reference",
			ArgsUsage: "NAME",
			Flags:     []cli.Flag{addrFlag},
			Action:    getCommand,
		},
		{
			Name:      "resolve",
			Usage:     "resolve a name through the INS key",
			ArgsUsage: "NAME",
			Flags:     []cli.Flag{addrFlag},
			Action:    resolveCommand,
		},
		{
			Name:      "echo",
			Usage:     "call echo on a reference",
			ArgsUsage: "IOR MESSAGE",
			Flags:     []cli.Flag{addrFlag},
			Action:    echoCommand,
		},
		{
			Name:      "put-ref",
			Usage:     "store an initial reference in the configured store",
			ArgsUsage: "NAME IOR",
			Flags:     []cli.Flag{configFlag},
			Action:    putRefCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.LoadORB(c.String("config"))
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger("orbd", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, err := orb.New(ctx, cfg, logger, setupEcho)
	if err != nil {
		return err
	}
	o.Adapters().SetActivator(demoActivator)
	if err := o.Start(); err != nil {
		_ = o.Stop()
		return err
	}
	logger.Info("orbd started",
		zap.String("orb_id", cfg.ORBID),
		zap.Strings("initial_refs", o.InitialRefs().List()),
	)

	select {
	case <-ctx.Done():
	case <-o.Server().Dead():
	}
	logger.Info("orbd stopping")
	return o.Stop()
}

func dial(c *cli.Context) (*client.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	cl, err := client.Dial(ctx, c.String("addr"), transport.ConnOptions{})
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return cl, ctx, cancel, nil
}

func listCommand(c *cli.Context) error {
	cl, ctx, cancel, err := dial(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer cl.Close()

	names, err := cl.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func getCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.NewExitError("get: NAME is required", 2)
	}
	cl, ctx, cancel, err := dial(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer cl.Close()

	ref, err := cl.Get(ctx, name)
	if err != nil {
		return err
	}
	if ref.IsNil() {
		return cli.NewExitError(fmt.Sprintf("get: %s not found", name), 1)
	}
	fmt.Println(ref.String())
	return nil
}

func resolveCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.NewExitError("resolve: NAME is required", 2)
	}
	cl, ctx, cancel, err := dial(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer cl.Close()

	ref, err := cl.Resolve(ctx, name)
	if err != nil {
		return err
	}
	fmt.Println(ref.String())
	return nil
}

func echoCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("echo: IOR and MESSAGE are required", 2)
	}
	ref, err := ior.ParseString(c.Args().Get(0))
	if err != nil {
		return err
	}
	cl, ctx, cancel, err := dial(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer cl.Close()

	d, err := cl.InvokeRef(ctx, ref, "echo", func(e *cdr.Encoder) {
		e.WriteString(c.Args().Get(1))
	})
	if err != nil {
		return err
	}
	out, err := d.ReadString()
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

type refStore interface {
	PutRef(ctx context.Context, name, ref string) error
}

func putRefCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("put-ref: NAME and IOR are required", 2)
	}
	name, raw := c.Args().Get(0), c.Args().Get(1)
	if _, err := ior.ParseString(raw); err != nil {
		return err
	}
	cfg, err := config.LoadORB(c.String("config"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stores []refStore
	if cfg.BoltPath != "" {
		store, err := bolt_tools.Open(cfg.BoltPath, cfg.ORBID)
		if err != nil {
			return err
		}
		defer store.Close()
		stores = append(stores, store)
	}
	if cfg.Redis != nil {
		rc := redis_tools.NewClient(redis_tools.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()
		stores = append(stores, redis_tools.NewRefDao(rc, cfg.ORBID))
	}
	if len(stores) == 0 {
		return errors.New("put-ref: config names neither bolt_path nor redis")
	}
	for _, s := range stores {
		if err := s.PutRef(ctx, name, raw); err != nil {
			return err
		}
	}
	return nil
}
