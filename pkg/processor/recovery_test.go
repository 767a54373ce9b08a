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
	"bytes"
	"context"
	"io"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/numaproj/numastream/pkg/checkpoint"
	"github.com/numaproj/numastream/pkg/endpoint"
	"github.com/numaproj/numastream/pkg/forward"
	"github.com/numaproj/numastream/pkg/graph"
	"github.com/numaproj/numastream/pkg/isb"
	"github.com/numaproj/numastream/pkg/middleware"
	"github.com/numaproj/numastream/pkg/shared/logging"
	"github.com/numaproj/numastream/pkg/sources/receiver"
)

type countState struct {
	n int
}

func (c *countState) Snapshot() ([]byte, error) {
	return []byte(strconv.Itoa(c.n)), nil
}

func (c *countState) Restore(b []byte) error {
	n, err := strconv.Atoi(string(b))
	c.n = n
	return err
}

// writeFrames sends events with the given values the way an upstream shard does. An empty
// value is a flush marker.
func writeFrames(t *testing.T, w io.Writer, values ...string) {
	t.Helper()
	codec := isb.NewProtoWireCodec(isb.DefaultPayloadRegistry())
	var buf bytes.Buffer
	fw := endpoint.NewFrameWriter(&buf, endpoint.DefaultBufferSize, time.Hour)
	for _, v := range values {
		if v == "" {
			require.NoError(t, fw.WriteFrame(endpoint.FlushMarker))
			continue
		}
		b, err := codec.Marshal(isb.NewDataMessage(isb.EventPayload{Event: isb.Event{Value: []byte(v)}}))
		require.NoError(t, err)
		require.NoError(t, fw.WriteFrame(b))
	}
	require.NoError(t, fw.Flush())
	_, err := w.Write(buf.Bytes())
	require.NoError(t, err)
}

type recoveryFixture struct {
	recovery *recovery
	state    *countState
	id       string
	stream   *io.PipeWriter
	sunk     chan string
}

// newRecoveryFixture runs the forwarder of out-0, fed by a stream from in-0 and dispatching to
// sunk, with one checkpoint of a state counting 3.
func newRecoveryFixture(t *testing.T, ctx context.Context) *recoveryFixture {
	t.Helper()
	topo := buildTopology(t, testTopology)
	log := zap.NewNop().Sugar()
	recv := receiver.New("out", 0, topo.Inputs("out"), endpoint.WithQueueSize(64))
	pr, pw := io.Pipe()
	ingressDone := make(chan error, 1)
	go func() {
		ingressDone <- recv.Ingress(ctx, "input0", pr, 0)
	}()

	store, err := checkpoint.NewMemoryStore(4)
	require.NoError(t, err)
	state := &countState{n: 3}
	require.NoError(t, store.Register("count", state))
	id, err := store.TakeCheckpoint(ctx, "out-0")
	require.NoError(t, err)
	state.n = 10

	aligner, err := checkpoint.NewChandyLamport("out-0", recv, store)
	require.NoError(t, err)
	pl, err := middleware.NewPipeline(control{instance: "out-0"}, aligner)
	require.NoError(t, err)
	sunk := make(chan string)
	sink := forward.DispatchFunc(func(ctx context.Context, msg isb.Message) error {
		p, _ := isb.GetPayload[isb.EventPayload](msg)
		select {
		case sunk <- string(p.Event.Value):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	f, err := forward.NewStreamForward("out", recv, pl.ForVertex("out"), sink, forward.WithInstance("out-0"), forward.WithLogger(log))
	require.NoError(t, err)
	stopped := f.Start()
	t.Cleanup(func() {
		f.Stop()
		<-stopped
		_ = pw.Close()
		<-ingressDone
	})

	return &recoveryFixture{
		recovery: &recovery{
			instance:   "out-0",
			forwarders: []*forward.StreamForward{f},
			dispatcher: forward.NewPartitioningDispatcher(0, nil, endpoint.NewCodecPool(isb.DefaultPayloadRegistry())),
			recv:       recv,
			aligner:    aligner,
			store:      store,
			log:        log,
		},
		state:  state,
		id:     id,
		stream: pw,
		sunk:   sunk,
	}
}

func (f *recoveryFixture) next(t *testing.T) string {
	t.Helper()
	select {
	case v := <-f.sunk:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("nothing dispatched")
		return ""
	}
}

func TestRecovery_RestoreDuringTraffic(t *testing.T) {
	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), zap.NewNop().Sugar()), 10*time.Second)
	defer cancel()
	f := newRecoveryFixture(t, ctx)

	var pre []string
	for i := 0; i < 10; i++ {
		pre = append(pre, "pre-"+strconv.Itoa(i))
	}
	writeFrames(t, f.stream, pre...)
	// pre-1 may be in flight, the rest is queued
	assert.Equal(t, "pre-0", f.next(t))

	restored := make(chan error, 1)
	go func() {
		restored <- f.recovery.Restore(ctx, f.id)
	}()
	// in-0 restores as well: it flushes its stream, then sends again
	writeFrames(t, f.stream, "", "post-0", "post-1")

	var during []string
	for done := false; !done; {
		select {
		case v := <-f.sunk:
			during = append(during, v)
		case err := <-restored:
			require.NoError(t, err)
			done = true
		case <-ctx.Done():
			t.Fatal("restore did not complete")
		}
	}
	assert.Equal(t, 3, f.state.n)

	got := append([]string{"pre-0"}, during...)
	for !slices.Contains(got, "post-1") {
		v := f.next(t)
		assert.True(t, strings.HasPrefix(v, "post-"), "%s dispatched after the restore", v)
		got = append(got, v)
	}
	var posts []string
	for i, v := range got {
		if strings.HasPrefix(v, "pre-") {
			// only what was dispatched before the forwarder halted
			assert.Equal(t, "pre-"+strconv.Itoa(i), v)
			continue
		}
		posts = append(posts, v)
	}
	assert.Equal(t, []string{"post-0", "post-1"}, posts)
}

func TestRecovery_UnknownCheckpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), zap.NewNop().Sugar()), 10*time.Second)
	defer cancel()
	f := newRecoveryFixture(t, ctx)

	assert.ErrorIs(t, f.recovery.Restore(ctx, "nope"), checkpoint.ErrUnknownCheckpoint)
	require.Len(t, f.recovery.Checkpoints(), 1)
	assert.Equal(t, f.id, f.recovery.Checkpoints()[0].ID)
	assert.Equal(t, 10, f.state.n)
}

func TestRecovery_UpstreamNeverFlushes(t *testing.T) {
	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), zap.NewNop().Sugar()), 10*time.Second)
	defer cancel()
	f := newRecoveryFixture(t, ctx)

	rctx, rcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer rcancel()
	assert.ErrorIs(t, f.recovery.Restore(rctx, f.id), context.DeadlineExceeded)
	assert.Equal(t, 10, f.state.n)

	// the forwarder resumed and nothing is dropped
	writeFrames(t, f.stream, "late")
	assert.Equal(t, "late", f.next(t))
}

type endedSource struct{}

func (endedSource) Take(context.Context) (isb.Message, error) { return isb.Message{}, io.EOF }
func (endedSource) MessageOrigin() (graph.Origin, bool)       { return graph.Origin{}, false }
func (endedSource) Flush(context.Context, []string) error     { return nil }

func TestHalted_SkipsExitedForwarders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pl, err := middleware.NewPipeline(control{instance: "out-0"})
	require.NoError(t, err)
	exited, err := forward.NewStreamForward("out", endedSource{}, pl.ForVertex("out"),
		forward.DispatchFunc(func(context.Context, isb.Message) error { return nil }),
		forward.WithInstance("out-0"), forward.WithLogger(zap.NewNop().Sugar()))
	require.NoError(t, err)
	<-exited.Start()

	ran := false
	require.NoError(t, halted(ctx, []*forward.StreamForward{exited}, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
