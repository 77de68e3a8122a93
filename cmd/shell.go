package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/observability"
)

const shellBanner = `
  minerctl interactive shell
  commands: start, stop, rpc <method> [json-args...], status, help, exit

`

const shellHelp = `start                         load the page if needed and call window.start()
stop                          call window.stop()
rpc <method> [json-args...]   call window.miner[method](...args)
status                        show controller state
exit | quit                   kill the miner and leave
`

func newShellCmd() *cobra.Command {
	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Control a miner interactively (default when no command is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			sess, err := openSession(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer sess.close()

			relayCtx, stopRelay := context.WithCancel(ctx)
			defer stopRelay()
			evs, unsubscribe := sess.ctrl.Subscribe()
			defer unsubscribe()
			r := &relay{
				controllerID: sess.ctrl.ID(),
				logger:       logger.Named("events"),
				metrics:      sess.metrics,
				updateLog:    newUpdateLimiter(cfg),
			}
			go func() { _ = r.run(relayCtx, evs) }()

			fmt.Fprint(cmd.OutOrStdout(), shellBanner)
			return runShell(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), sess.ctrl, firstCallTimeout(cfg), logger)
		},
	}
	addMinerFlags(shellCmd)
	return shellCmd
}

// runShell reads commands from in until exit, EOF or ctx ends. Command
// failures are printed and do not end the session.
func runShell(ctx context.Context, in io.Reader, out io.Writer, m minerAPI, timeout time.Duration, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, "minerctl > ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}

		if err := shellCommand(ctx, out, m, timeout, fields); err != nil {
			logger.Debug("Shell command failed.", zap.String("command", fields[0]), zap.Error(err))
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func shellCommand(ctx context.Context, out io.Writer, m minerAPI, timeout time.Duration, fields []string) error {
	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	switch fields[0] {
	case "start":
		res, err := m.Start(callCtx)
		if err != nil {
			return err
		}
		printResult(out, res)
	case "stop":
		res, err := m.Stop(callCtx)
		if err != nil {
			return err
		}
		printResult(out, res)
	case "rpc":
		if len(fields) < 2 {
			return fmt.Errorf("usage: rpc <method> [json-args...]")
		}
		return callAndPrint(callCtx, out, m, fields[1], fields[2:])
	case "status":
		fmt.Fprintf(out, "controller %s initialized=%t killed=%t\n", m.ID(), m.Initialized(), m.Killed())
	case "help":
		fmt.Fprint(out, shellHelp)
	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return nil
}
