// marketpivot is the CLI for the incremental wide-to-long market data
// transformation engine.
package main

import "github.com/datalift-io/marketpivot/internal/cli"

func main() {
	cli.Execute()
}
