package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/tudbut/qft/internal/config"
	"github.com/tudbut/qft/internal/holepunch"
	"github.com/tudbut/qft/internal/rendezvous"
	"github.com/tudbut/qft/internal/safestream"
	"github.com/tudbut/qft/internal/transfer"
)

const maxTagLen = rendezvous.TagSize

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:    "help",
			Aliases: []string{"h"},
			Usage:   "show usage information",
			Action: func(c *cli.Context) error {
				cli.ShowAppHelp(c)
				return nil
			},
		},
		{
			Name:  "readme",
			Usage: "print the embedded README",
			Action: func(c *cli.Context) error {
				fmt.Print(readmeText)
				return nil
			},
		},
		{
			Name:    "version",
			Aliases: []string{"v", "V"},
			Usage:   "print the version",
			Action: func(c *cli.Context) error {
				fmt.Printf("qft v%s\n", VERSION)
				return nil
			},
		},
		{
			Name:      "helper",
			Aliases:   []string{"H"},
			Usage:     "run the rendezvous (pairing) server",
			ArgsUsage: "[PORT]",
			Flags: []cli.Flag{
				logFlag(),
			},
			Action: helperAction,
		},
		{
			Name:      "send",
			Aliases:   []string{"s", "S"},
			Usage:     "send a file to a waiting peer",
			ArgsUsage: "FILE TAG [ADDRESS:PORT]",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "d", Value: 500, Usage: "per-packet pacing delay in microseconds"},
				cli.IntFlag{Name: "r", Value: 256, Usage: "payload size per chunk, in bytes"},
				cli.IntFlag{Name: "s", Value: 0, Usage: "file byte offset at which to resume"},
				cli.StringFlag{Name: "c", Usage: "override arguments from a JSON config file"},
				logFlag(),
				cli.BoolFlag{Name: "quiet", Usage: "suppress the progress percentage log lines"},
			},
			Action: sendAction,
		},
		{
			Name:      "receive",
			Aliases:   []string{"r", "R"},
			Usage:     "receive a file from a waiting peer",
			ArgsUsage: "FILE TAG [ADDRESS:PORT]",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "r", Value: 256, Usage: "payload size per chunk, in bytes"},
				cli.IntFlag{Name: "s", Value: 0, Usage: "file byte offset at which to resume"},
				cli.StringFlag{Name: "c", Usage: "override arguments from a JSON config file"},
				logFlag(),
				cli.BoolFlag{Name: "quiet", Usage: "suppress the progress percentage log lines"},
			},
			Action: receiveAction,
		},
	}
}

func logFlag() cli.Flag {
	return cli.StringFlag{Name: "log", Usage: "redirect log output to FILE instead of stderr"}
}

// redirectLog applies the -log flag the same way the teacher's client/
// server main.go redirect config.Log to an opened file.
func redirectLog(c *cli.Context) error {
	path := c.String("log")
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	log.SetOutput(f)
	return nil
}

func helperAction(c *cli.Context) error {
	if err := redirectLog(c); err != nil {
		checkError(err)
	}

	port := 4277
	if c.NArg() > 1 {
		cli.ShowCommandHelp(c, "helper")
		os.Exit(1)
	}
	if c.NArg() == 1 {
		n, err := parseUint(c.Args().Get(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Invalid port: must be integer")
			cli.ShowCommandHelp(c, "helper")
			os.Exit(1)
		}
		port = int(n)
	}

	log.Println("listening on port:", port)
	checkError(errors.Wrap(rendezvous.Serve(port), "run rendezvous server"))
	return nil
}

func sendAction(c *cli.Context) error {
	if err := redirectLog(c); err != nil {
		checkError(err)
	}
	cfg := parseTransferArgs(c, "send")

	env := config.LoadEnv()
	stream, err := connectAndPunch(cfg, env)
	checkError(err)

	log.Println("holepunch and connection successful")

	err = transfer.Send(stream, cfg.File, cfg.Start, cfg.Bitrate, time.Duration(cfg.Delay)*time.Microsecond, env.Stream, progressLogger(c))
	checkError(errors.Wrap(err, "send"))
	return nil
}

func receiveAction(c *cli.Context) error {
	if err := redirectLog(c); err != nil {
		checkError(err)
	}
	cfg := parseTransferArgs(c, "receive")

	env := config.LoadEnv()
	stream, err := connectAndPunch(cfg, env)
	checkError(err)

	log.Println("holepunch and connection successful")

	err = transfer.Receive(stream, cfg.File, cfg.Start, cfg.Bitrate, progressLogger(c))
	checkError(errors.Wrap(err, "receive"))
	return nil
}

// connectAndPunch runs the rendezvous exchange and hole-punch handshake,
// then wraps the resulting socket in a safestream.Stream.
func connectAndPunch(cfg config.TransferConfig, env config.Env) (*safestream.Stream, error) {
	helperAddr := env.Helper
	if cfg.Address != "" {
		helperAddr = cfg.Address
	}
	log.Println("using helper:", helperAddr)

	conn, err := holepunch.Punch(helperAddr, cfg.Tag, env.UseTimedHolepunch)
	if err != nil {
		return nil, errors.Wrap(err, "holepunch")
	}

	stream := safestream.New(conn)
	stream.HideDrops = env.HideDrops
	return stream, nil
}

// parseTransferArgs builds a config.TransferConfig from positional args,
// flags, and an optional -c JSON override, matching the FILE TAG
// [ADDRESS:PORT] surface of both send and receive.
func parseTransferArgs(c *cli.Context, command string) config.TransferConfig {
	if c.NArg() < 2 || c.NArg() > 3 {
		cli.ShowCommandHelp(c, command)
		os.Exit(1)
	}

	cfg := config.TransferConfig{
		File:    c.Args().Get(0),
		Tag:     c.Args().Get(1),
		Address: c.Args().Get(2),
		Delay:   uint64(c.Int("d")),
		Bitrate: uint32(c.Int("r")),
		Start:   uint64(c.Int("s")),
	}

	if len(cfg.Tag) > maxTagLen {
		fmt.Fprintf(os.Stderr, "Tag too long: must be at most %d bytes\n", maxTagLen)
		os.Exit(1)
	}

	if path := c.String("c"); path != "" {
		if err := config.ParseJSONConfig(&cfg, path); err != nil {
			checkError(errors.Wrap(err, "load config override"))
		}
	}

	return cfg
}

// progressLogger returns a ProgressFunc that writes a percentage to the log,
// or nil under -quiet (the teacher's "stream open/close" quiet convention
// applied to transfer progress instead).
func progressLogger(c *cli.Context) transfer.ProgressFunc {
	if c.Bool("quiet") {
		return nil
	}
	return func(frac float32) {
		log.Printf("progress: %.1f%%", frac*100)
	}
}

func parseUint(s string) (uint64, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
