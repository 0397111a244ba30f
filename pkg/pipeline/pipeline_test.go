package pipeline

import (
	"testing"

	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/errors"
)

func TestValidateAndSetDefaults(t *testing.T) {
	valid := func() Options {
		return Options{
			Count:          3,
			LayersOrder:    []string{"background", "eyes"},
			CollectionName: "Punks",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Options)
		want   errors.Code
	}{
		{"valid", func(*Options) {}, ""},
		{"zero count", func(o *Options) { o.Count = 0 }, errors.ErrCodeInvalidInput},
		{"resume allows zero count", func(o *Options) { o.Count = 0; o.Resume = true }, ""},
		{"resume with indices", func(o *Options) { o.Resume = true; o.Indices = []int{1} }, errors.ErrCodeInvalidInput},
		{"empty collection", func(o *Options) { o.CollectionName = " " }, errors.ErrCodeInvalidInput},
		{"duplicate order", func(o *Options) { o.LayersOrder = []string{"eyes", "eyes"} }, errors.ErrCodeDuplicateLayer},
		{"empty order", func(o *Options) { o.LayersOrder = nil }, errors.ErrCodeInvalidInput},
		{"index out of range", func(o *Options) { o.Indices = []int{0, 3} }, errors.ErrCodeInvalidInput},
		{"negative index", func(o *Options) { o.Indices = []int{-1} }, errors.ErrCodeInvalidInput},
		{"bad color trait", func(o *Options) { o.Color = colortrait.Method("median") }, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid()
			tt.mutate(&o)
			err := o.ValidateAndSetDefaults()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestDefaultsApplied(t *testing.T) {
	o := Options{Count: 1, LayersOrder: []string{"a"}, CollectionName: "c"}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if o.LayersPath != DefaultLayersPath || o.OutputPath != DefaultOutputPath {
		t.Errorf("paths = %q, %q", o.LayersPath, o.OutputPath)
	}
	if o.Workers != DefaultWorkers() {
		t.Errorf("Workers = %d, want %d", o.Workers, DefaultWorkers())
	}
	if o.Logger == nil {
		t.Error("Logger should default")
	}
}

func TestTargets(t *testing.T) {
	o := Options{Count: 3}
	if got := o.targets(); len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("targets() = %v, want [0 1 2]", got)
	}

	input := []int{5, 1, 5, 3}
	o = Options{Count: 10, Indices: input}
	got := o.targets()
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("targets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("targets() = %v, want %v", got, want)
		}
	}
	if input[0] != 5 {
		t.Error("targets() mutated Options.Indices")
	}
}

func TestItemRandIndependentAndStable(t *testing.T) {
	a := ItemRand(42, 0).Uint64()
	b := ItemRand(42, 1).Uint64()
	if a == b {
		t.Error("distinct indices should get distinct streams")
	}
	if ItemRand(42, 0).Uint64() != a {
		t.Error("same seed and index should repeat")
	}
}
