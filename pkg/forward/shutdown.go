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

package forward

import (
	"fmt"
	"sync"
	"time"
)

// Shutdown tracks and enforces the shutdown activity.
type Shutdown struct {
	startShutdown      bool
	forceShutdown      bool
	initiateTime       time.Time
	shutdownRequestCtr int
	rwlock             *sync.RWMutex
}

// IsShuttingDown returns whether we can stop processing.
func (sf *StreamForward) IsShuttingDown() bool {
	sf.Shutdown.rwlock.RLock()
	defer sf.Shutdown.rwlock.RUnlock()
	return sf.Shutdown.forceShutdown || sf.Shutdown.startShutdown
}

func (s *Shutdown) String() string {
	s.rwlock.RLock()
	defer s.rwlock.RUnlock()
	return fmt.Sprintf("startShutdown:%t forceShutdown:%t shutdownRequestCtr:%d initiateTime:%s",
		s.startShutdown, s.forceShutdown, s.shutdownRequestCtr, s.initiateTime)
}

// Stop stops the processing. The loop exits at its next Take, a message already taken is
// processed and dispatched first.
func (sf *StreamForward) Stop() {
	sf.Shutdown.rwlock.Lock()
	defer sf.Shutdown.rwlock.Unlock()
	if sf.Shutdown.initiateTime.IsZero() {
		sf.Shutdown.initiateTime = time.Now()
	}
	sf.Shutdown.startShutdown = true
	sf.Shutdown.shutdownRequestCtr++
	// call cancel
	sf.cancelFn()
}

// ForceStop sets up the force shutdown flag and interrupts a blocked dispatch. Messages already
// processed but not dispatched are dropped.
func (sf *StreamForward) ForceStop() {
	sf.Stop()
	sf.Shutdown.rwlock.Lock()
	defer sf.Shutdown.rwlock.Unlock()
	sf.Shutdown.forceShutdown = true
	sf.forceCancelFn()
}
