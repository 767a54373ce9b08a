/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package count

import (
	"context"
	"fmt"
	"strconv"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/operator"
)

// New returns an aggregator emitting, per key, the number of events seen every "window" events.
// The emitted event carries the count as a decimal string and the event time of the last event.
func New(args map[string]string) (*operator.Aggregator, error) {
	window := 1
	if w, existing := args["window"]; existing {
		n, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid \"window\" %q: %w", w, err)
		}
		window = n
	}
	return operator.Aggregate(window, func(_ context.Context, key string, events []isb.Event) (isb.Event, error) {
		return isb.Event{
			Key:       key,
			Value:     []byte(strconv.Itoa(len(events))),
			EventTime: events[len(events)-1].EventTime,
		}, nil
	})
}
