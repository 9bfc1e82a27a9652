// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
)

// ContainerParallelEnv overrides how many container tests may run at once.
const ContainerParallelEnv = "NESTNET_TEST_CONTAINER_PARALLEL"

// ContainerSemaphore limits concurrent container operations across the test
// binary. Acquire a slot by sending, release by receiving:
//
//	sem := testutil.ContainerSemaphore()
//	sem <- struct{}{}
//	defer func() { <-sem }()
var ContainerSemaphore = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism())
})

// containerParallelism reads ContainerParallelEnv, falling back to
// min(GOMAXPROCS, 2).
func containerParallelism() int {
	if v := os.Getenv(ContainerParallelEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return min(runtime.GOMAXPROCS(0), 2)
}
