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

package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/goccy/go-json"
)

var sprigFuncMap = sprig.GenericFuncMap()

// The helpers below panic on values they cannot convert. The expr VM recovers the panic and
// reports it as an evaluation error of the expression.

func _int(v interface{}) int {
	switch w := v.(type) {
	case int:
		return w
	case int64:
		return int(w)
	case float64:
		return int(w)
	case string, []byte:
		i, err := strconv.Atoi(strings.TrimSpace(_string(w)))
		if err != nil {
			panic(fmt.Errorf("cannot convert %q to int", _string(w)))
		}
		return i
	default:
		panic(fmt.Errorf("cannot convert %T to int", v))
	}
}

func _string(v interface{}) string {
	switch w := v.(type) {
	case nil:
		return ""
	case string:
		return w
	case []byte:
		return string(w)
	default:
		return fmt.Sprint(v)
	}
}

// _json decodes a JSON object, events usually carry one as their value.
func _json(v interface{}) map[string]interface{} {
	var raw []byte
	switch w := v.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(w)
	case []byte:
		raw = w
	default:
		panic(fmt.Errorf("cannot convert %T to object", v))
	}
	x := make(map[string]interface{})
	if err := json.Unmarshal(raw, &x); err != nil {
		panic(fmt.Errorf("cannot convert %q to object: %w", raw, err))
	}
	return x
}
