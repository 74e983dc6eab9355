// Command pagesim boots the simulated machine and runs memory-reference
// workloads against its demand pager.
package main

import "github.com/sarchlab/pagesim/pagesim/cmd"

func main() {
	cmd.Execute()
}
