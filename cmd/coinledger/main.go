// Command coinledger runs the coin ledger service.
package main

import "github.com/fableworks/coinledger/internal/cli"

func main() {
	cli.Execute()
}
