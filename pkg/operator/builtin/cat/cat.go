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

package cat

import (
	"context"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/operator"
)

// New returns a map handler forwarding every event unchanged.
func New() middleware.Handler {
	return operator.Map(func(_ context.Context, event isb.Event) (isb.Event, error) {
		return event, nil
	})
}
