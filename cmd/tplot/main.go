// tplot stores, derives and plots named time series.
package main

import (
	"os"

	"github.com/xtxerr/tplot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
