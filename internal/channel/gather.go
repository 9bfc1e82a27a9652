// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"context"
	"errors"
	"time"
)

// gatherSlice bounds each WaitAny so cancellation is observed.
const gatherSlice = 250 * time.Millisecond

// Gather collects the results of many busy channels using one WaitAny loop.
// Results are returned in the order of chans. A channel that fails does not
// stop the others; all failures are joined.
func Gather(ctx context.Context, mux *Multiplexer, chans []*Channel) ([]Result, error) {
	results := make([]Result, len(chans))
	pending := make(map[Handle]int, len(chans))
	var errs []error

	for i, c := range chans {
		if st := c.State(); st != StateBusy {
			errs = append(errs, &ClosedError{Node: c.Name(), State: st})
			continue
		}
		if res, ok := c.complete(nil); ok {
			results[i] = res
			continue
		}
		pending[c.Handle()] = i
	}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return results, errors.Join(append(errs, err)...)
		}
		ready, err := mux.WaitAny(gatherSlice)
		if err != nil {
			return results, errors.Join(append(errs, err)...)
		}
		for _, h := range ready {
			i, ok := pending[h]
			if !ok {
				continue
			}
			c := chans[i]
			if _, err := c.fill(); err != nil {
				errs = append(errs, err)
				delete(pending, h)
				continue
			}
			if res, done := c.complete(nil); done {
				results[i] = res
				delete(pending, h)
			}
		}
		// Channels closed by someone else drop out of the mapping.
		for h, i := range pending {
			if st := chans[i].State(); st != StateBusy {
				errs = append(errs, &ClosedError{Node: chans[i].Name(), State: st})
				delete(pending, h)
			}
		}
	}
	return results, errors.Join(errs...)
}
