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

package processor

import (
	"context"

	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/shared/logging"
)

// control absorbs the control messages received by an instance, they never travel further
// than one hop. Checkpoint reports are logged.
type control struct {
	instance string
}

var _ middleware.Handler = control{}

func (c control) Name() string { return "control" }

func (c control) Handle(ctx context.Context, msg isb.Message) ([]isb.Message, error) {
	if !msg.IsControl() {
		return middleware.Forward(msg), nil
	}
	if p, ok := isb.GetPayload[isb.CheckpointTakenPayload](msg); ok {
		controlReceived.WithLabelValues(c.instance, p.MetaDataKey()).Inc()
		logging.FromContext(ctx).Infow("Checkpoint reported", "checkpointId", p.CheckpointID, "from", p.Instance)
		return middleware.Absorb(), nil
	}
	controlReceived.WithLabelValues(c.instance, "other").Inc()
	return middleware.Absorb(), nil
}
