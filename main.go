// Command necessist audits a test suite by removing statements and method
// calls from test bodies and checking whether the tests still pass.
package main

import "github.com/necessist/necessist/cmd"

func main() {
	cmd.Execute()
}
