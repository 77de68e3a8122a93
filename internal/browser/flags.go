package browser

import "strings"

// DefaultArgs is the baseline flag set every browser is launched with, in order.
var DefaultArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--single-process",
	"--no-zygote",
	"--headless",
	"--disable-gpu",
	"--hide-scrollbars",
	"--enable-logging",
	"--log-level=0",
	"--v=99",
	"--user-data-dir=/tmp/user-data",
	"--data-path=/tmp/data-path",
	"--homedir=/tmp",
	"--disk-cache-dir=/tmp/cache-dir",
}

// LaunchArgs returns the full argument list for opts: the proxy flag first
// when configured, then DefaultArgs.
func LaunchArgs(opts LaunchOptions) []string {
	args := make([]string, 0, len(DefaultArgs)+1)
	if opts.Proxy != "" {
		args = append(args, "--proxy-server="+opts.Proxy)
	}
	return append(args, DefaultArgs...)
}

// Flag is a parsed command line switch. Value is empty for boolean switches.
type Flag struct {
	Name  string
	Value string
}

// IsBool reports whether the flag carries no value.
func (f Flag) IsBool() bool { return f.Value == "" }

// ParseFlags splits "--name=value" style arguments into flags, keeping order.
func ParseFlags(args []string) []Flag {
	flags := make([]Flag, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(strings.TrimLeft(arg, "-"), "=", 2)
		f := Flag{Name: parts[0]}
		if len(parts) == 2 {
			f.Value = parts[1]
		}
		flags = append(flags, f)
	}
	return flags
}
