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

package testutils

import (
	"fmt"
	"time"

	"github.com/numaproj/numastream/pkg/isb"
)

// BuildTestDataMessages builds keyed data messages carrying events, which can be used for testing.
// Message i has partition key i and event key "key_i".
func BuildTestDataMessages(count int, startTime time.Time) []isb.Message {
	var messages = make([]isb.Message, 0, count)
	for i := 0; i < count; i++ {
		msg := isb.NewDataMessage(isb.EventPayload{Event: isb.Event{
			Key:       fmt.Sprintf("key_%d", i),
			Value:     []byte(fmt.Sprintf("payload_%d", i)),
			EventTime: startTime.Add(time.Duration(i) * time.Minute),
		}})
		messages = append(messages, msg.WithPartitionKey(i))
	}
	return messages
}

// EventValues returns the event values carried by msgs, skipping messages without an event.
func EventValues(msgs []isb.Message) []string {
	values := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if p, ok := isb.GetPayload[isb.EventPayload](m); ok {
			values = append(values, string(p.Event.Value))
		}
	}
	return values
}
