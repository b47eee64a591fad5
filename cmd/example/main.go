package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/fluxorio/isowrap/pkg/diagnostics"
	"github.com/fluxorio/isowrap/pkg/isowrap"
	obsprom "github.com/fluxorio/isowrap/pkg/observability/prometheus"
	"github.com/fluxorio/isowrap/pkg/payload"
)

// Counter is deliberately not thread-safe; the wrapper is what makes it
// callable from many goroutines.
type Counter struct {
	total int
}

func (c *Counter) Add(n int) int {
	c.total += n
	return c.total
}

func (c *Counter) Total() int {
	return c.total
}

// EachBatch yields batch-sized chunks of 1..limit to the block.
func (c *Counter) EachBatch(limit, size int, block isowrap.Block) (interface{}, error) {
	for lo := 1; lo <= limit; lo += size {
		hi := lo + size - 1
		if hi > limit {
			hi = limit
		}
		if _, err := block([]interface{}{lo, hi}, nil); err != nil {
			return nil, err
		}
	}
	return limit, nil
}

func main() {
	journal, err := diagnostics.Open(":memory:")
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}
	defer journal.Close()

	// The counter is moved into the wrapper's server; the box proves it.
	box := payload.NewBox(&Counter{})
	w, err := isowrap.New(box,
		isowrap.WithName("counter"),
		isowrap.WithThreads(0),
		isowrap.WithLogging(true),
		isowrap.WithCollector(obsprom.GetMetrics()),
		isowrap.WithJournal(journal),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wrap:", err)
		os.Exit(1)
	}

	fmt.Println("box moved after wrap:", box.Moved())

	// Many peers, one non-thread-safe object.
	var wg sync.WaitGroup
	stub := w.Stub()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := stub.Call("Add", n); err != nil {
				fmt.Fprintln(os.Stderr, "add:", err)
			}
		}(i + 1)
	}
	wg.Wait()

	total, err := w.Call("Total")
	if err != nil {
		fmt.Fprintln(os.Stderr, "total:", err)
		os.Exit(1)
	}
	fmt.Println("total:", total)

	// Blocks relay back to the caller's goroutine.
	_, err = w.CallWith("EachBatch", []interface{}{10, 4}, nil,
		func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
			fmt.Printf("batch %d..%d\n", args[0], args[1])
			return nil, nil
		})
	if err != nil {
		fmt.Fprintln(os.Stderr, "each:", err)
	}

	w.AsyncStop().Join()

	// The object comes home after a clean shutdown.
	obj, err := w.RecoverObject()
	if err != nil {
		fmt.Fprintln(os.Stderr, "recover:", err)
		os.Exit(1)
	}
	fmt.Println("recovered total:", obj.(*Counter).Total())
}
