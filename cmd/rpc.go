package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/minerctl/internal/observability"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// minerAPI is the part of *miner.Controller the shell and rpc commands use.
type minerAPI interface {
	ID() string
	Start(ctx context.Context) (json.RawMessage, error)
	Stop(ctx context.Context) (json.RawMessage, error)
	Call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error)
	Initialized() bool
	Killed() bool
}

func newRPCCmd() *cobra.Command {
	rpcCmd := &cobra.Command{
		Use:   "rpc <method> [json-args...]",
		Short: "Call a method on the page's miner object and print the result",
		Long: `Loads the miner page, calls window.miner[method] with the given arguments
and prints the JSON result. Arguments that are not valid JSON are passed as strings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			sess, err := openSession(ctx, cfg, observability.GetLogger(), true)
			if err != nil {
				return err
			}
			defer sess.close()

			callCtx, cancel := withTimeout(ctx, firstCallTimeout(cfg))
			defer cancel()
			return callAndPrint(callCtx, cmd.OutOrStdout(), sess.ctrl, args[0], args[1:])
		},
	}
	addMinerFlags(rpcCmd)
	return rpcCmd
}

// parseArgs turns command line words into call arguments.
func parseArgs(words []string) []interface{} {
	args := make([]interface{}, len(words))
	for i, w := range words {
		if jsonAPI.Valid([]byte(w)) {
			args[i] = json.RawMessage(w)
		} else {
			args[i] = w
		}
	}
	return args
}

func callAndPrint(ctx context.Context, out io.Writer, m minerAPI, method string, words []string) error {
	res, err := m.Call(ctx, method, parseArgs(words)...)
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

func printResult(out io.Writer, res json.RawMessage) {
	if len(res) == 0 {
		fmt.Fprintln(out, "undefined")
		return
	}
	fmt.Fprintln(out, string(res))
}
