package isowrap

import "testing"

func TestNewMethodPolicy_Defaults(t *testing.T) {
	p := NewMethodPolicy(PolicySettings{})

	if p.MoveArguments || p.MoveResults || p.MoveBlockArguments || p.MoveBlockResults {
		t.Errorf("zero settings should yield all-copy policy, got %+v", p)
	}
	if p.ExecuteBlocksInPlace {
		t.Error("ExecuteBlocksInPlace should default to false")
	}
}

func TestNewMethodPolicy_InheritsFromMoveData(t *testing.T) {
	p := NewMethodPolicy(PolicySettings{MoveData: Flag(true)})

	if !p.MoveArguments || !p.MoveResults || !p.MoveBlockArguments || !p.MoveBlockResults {
		t.Errorf("unset flags should inherit MoveData=true, got %+v", p)
	}
	if p.ExecuteBlocksInPlace {
		t.Error("ExecuteBlocksInPlace must not inherit MoveData")
	}
}

func TestNewMethodPolicy_SpecificWinsOverBase(t *testing.T) {
	tests := []struct {
		name string
		s    PolicySettings
		want MethodPolicy
	}{
		{
			name: "specific false beats base true",
			s:    PolicySettings{MoveData: Flag(true), MoveArguments: Flag(false)},
			want: MethodPolicy{MoveArguments: false, MoveResults: true, MoveBlockArguments: true, MoveBlockResults: true},
		},
		{
			name: "specific true beats base false",
			s:    PolicySettings{MoveData: Flag(false), MoveResults: Flag(true)},
			want: MethodPolicy{MoveResults: true},
		},
		{
			name: "specific true with base unset",
			s:    PolicySettings{MoveBlockArguments: Flag(true)},
			want: MethodPolicy{MoveBlockArguments: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewMethodPolicy(tt.s); got != tt.want {
				t.Errorf("NewMethodPolicy() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMethodPolicy_StructuralEquality(t *testing.T) {
	a := NewMethodPolicy(PolicySettings{MoveData: Flag(true)})
	b := NewMethodPolicy(PolicySettings{
		MoveArguments:      Flag(true),
		MoveResults:        Flag(true),
		MoveBlockArguments: Flag(true),
		MoveBlockResults:   Flag(true),
	})

	if a != b {
		t.Errorf("equivalent policies not equal: %+v vs %+v", a, b)
	}
}
