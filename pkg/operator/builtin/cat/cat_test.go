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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numastream/pkg/isb/testutils"
)

func TestCat(t *testing.T) {
	msgs := testutils.BuildTestDataMessages(2, time.Unix(1636470000, 0))
	out, err := New().Handle(context.Background(), msgs[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"payload_1"}, testutils.EventValues(out))
}
