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

package kafka

import (
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// consumerHandler hands claimed records to the source through a bounded channel and keeps the
// live session so that forwarded records can be marked.
type consumerHandler struct {
	ready       chan bool
	readyCloser sync.Once
	messages    chan *sarama.ConsumerMessage
	lock        sync.RWMutex
	sess        sarama.ConsumerGroupSession
	logger      *zap.SugaredLogger
}

func newConsumerHandler(readChanSize int, logger *zap.SugaredLogger) *consumerHandler {
	return &consumerHandler{
		ready:    make(chan bool),
		messages: make(chan *sarama.ConsumerMessage, readChanSize),
		logger:   logger,
	}
}

// Setup records the new session and releases Start on the first one.
func (h *consumerHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.lock.Lock()
	h.sess = sess
	h.lock.Unlock()
	h.readyCloser.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup commits the marked offsets of the ending session.
func (h *consumerHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	h.lock.Lock()
	h.sess = nil
	h.lock.Unlock()
	return nil
}

// ConsumeClaim runs once per claimed partition, each in its own goroutine.
func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- msg:
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			h.logger.Debugw("Session ended, releasing claim", zap.Int32("partition", claim.Partition()))
			return nil
		}
	}
}

// mark marks the offset of a message handed to the forwarder. It returns false when no session
// is active, the message will then be consumed again after the next rebalance.
func (h *consumerHandler) mark(msg *sarama.ConsumerMessage) bool {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if h.sess == nil {
		return false
	}
	h.sess.MarkMessage(msg, "")
	return true
}
