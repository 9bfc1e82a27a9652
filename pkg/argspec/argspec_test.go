// SPDX-License-Identifier: MPL-2.0

package argspec

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Spec
		wantErr error
	}{
		{
			name: "bare name",
			in:   "pingall",
			want: Spec{Name: "pingall", Args: Args{Keyword: map[string]any{}}},
		},
		{
			name: "positional and keyword",
			in:   "tree,2,fanout=3",
			want: Spec{Name: "tree", Args: Args{
				Positional: []any{2},
				Keyword:    map[string]any{"fanout": 3},
			}},
		},
		{
			name: "mixed value types",
			in:   "iperf,h1,h2,udpBw=10M,seconds=2.5",
			want: Spec{Name: "iperf", Args: Args{
				Positional: []any{"h1", "h2"},
				Keyword:    map[string]any{"udpBw": "10M", "seconds": 2.5},
			}},
		},
		{
			name: "value containing equals",
			in:   "remote,ip=10.0.0.1,opts=a=b",
			want: Spec{Name: "remote", Args: Args{
				Keyword: map[string]any{"ip": "10.0.0.1", "opts": "a=b"},
			}},
		},
		{
			name:    "empty name",
			in:      ",1,2",
			wantErr: ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Split(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Split(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Split(%q) unexpected error: %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMakeNumeric(t *testing.T) {
	t.Parallel()

	if got := MakeNumeric("42"); got != 42 {
		t.Errorf("MakeNumeric(42) = %#v", got)
	}
	if got := MakeNumeric("0.5"); got != 0.5 {
		t.Errorf("MakeNumeric(0.5) = %#v", got)
	}
	if got := MakeNumeric("10M"); got != "10M" {
		t.Errorf("MakeNumeric(10M) = %#v", got)
	}
}

func TestArgsAccessors(t *testing.T) {
	t.Parallel()

	spec, err := Split("iperf,h1,port=5002")
	if err != nil {
		t.Fatal(err)
	}
	if got := spec.Args.Pos(0, ""); got != "h1" {
		t.Errorf("Pos(0) = %q", got)
	}
	if got := spec.Args.Pos(1, "h2"); got != "h2" {
		t.Errorf("Pos(1) default = %q", got)
	}
	if got := spec.Args.Kw("port", ""); got != "5002" {
		t.Errorf("Kw(port) = %q", got)
	}
	if spec.Args.Empty() {
		t.Error("Empty() = true, want false")
	}
}
