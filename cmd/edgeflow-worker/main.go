// Command edgeflow-worker hosts the worker-side streaming runtime this
// module implements: the tuple-buffer pool, the worker-thread pool, and
// the ambient metrics surface. Compiling a query's source→pipeline→sink
// topology onto a running worker is the coordinator's job; this
// entrypoint only stands the runtime up and keeps it alive for that
// external control plane to drive.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
