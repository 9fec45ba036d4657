// Command fortune reveals one horoscope per day from a fortune server,
// caching it locally until midnight.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNoFortuneToday) {
			fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+err.Error()))
		}
		os.Exit(1)
	}
}
