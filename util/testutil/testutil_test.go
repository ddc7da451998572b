/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package testutil

import (
	"reflect"
	"testing"
)

type person struct {
	Name string
	Age  int
}

func TestJS(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{
			name: "struct",
			arg:  person{"homer", 39},
			want: `{"Name":"homer","Age":39}`,
		},
		{
			name: "nested",
			arg: struct {
				Person person
				ID     int
			}{person{"marge", 36}, 1},
			want: `{"Person":{"Name":"marge","Age":36},"ID":1}`,
		},
		{
			name: "unserializable",
			arg:  func() {},
			want: "(func())",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JS(tt.arg)
			if tt.name == "unserializable" {
				if len(got) == 0 || got[0] != '(' {
					t.Fatal(got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("JS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDwimjs(t *testing.T) {
	want := map[string]interface{}{"name": "bart", "age": float64(10)}
	if got := Dwimjs(`{"name":"bart","age":10}`); !reflect.DeepEqual(got, want) {
		t.Fatal(got)
	}
	if got := Dwimjs([]byte(`{"name":"bart","age":10}`)); !reflect.DeepEqual(got, want) {
		t.Fatal(got)
	}
	if got := Dwimjs(12345); got != 12345 {
		t.Fatal(got)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("no panic on bad JSON")
		}
	}()
	Dwimjs("not json")
}

func TestDwimyaml(t *testing.T) {
	got := Dwimyaml(`{name: lisa, age: 8, likes: [sax, 2]}`)
	want := Dwimjs(`{"name":"lisa","age":8,"likes":["sax",2]}`)
	if !reflect.DeepEqual(got, want) {
		t.Fatal(JS(got))
	}
}

func TestJSONDiff(t *testing.T) {
	got := []interface{}{
		int64(42),
		map[interface{}]interface{}{"x": 1, "y": []interface{}{"a"}},
	}
	if diff := JSONDiff(Dwimyaml(`[42, {x: 1, y: [a]}]`), got); diff != "" {
		t.Fatal(diff)
	}
	if diff := JSONDiff(Dwimjs(`[43]`), []interface{}{42}); diff == "" {
		t.Fatal("expected a difference")
	}
}
