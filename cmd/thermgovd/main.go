// Command thermgovd is a closed-loop thermal governor daemon: it replaces
// the static cpufreq policy with a controller that watches package
// temperature and fan speed and adjusts per-CPU frequency caps in
// response.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wrale/thermal-governor/cmd/thermgovd/internal/root"
)

func main() {
	cmd := root.New()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
