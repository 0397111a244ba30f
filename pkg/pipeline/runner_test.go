package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/metadata"
	"github.com/matzehuels/nftgen/pkg/raster"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

// writeLayer writes a w x h layer whose pixels are all (v, v, v, 255).
func writeLayer(t *testing.T, dir, name string, w, h int, v byte) {
	t.Helper()
	img := raster.New(w, h, raster.BytesPerPixel)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	if err := raster.Write(dir, name, img); err != nil {
		t.Fatal(err)
	}
}

// twoCategoryLayers creates background/blue.png and eyes/open#2.png.
func twoCategoryLayers(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeLayer(t, filepath.Join(root, "background"), "blue.png", 4, 4, 10)
	writeLayer(t, filepath.Join(root, "eyes"), "open#2.png", 4, 4, 200)
	return root
}

func baseOptions(layers, out string) Options {
	return Options{
		Count:          3,
		LayersPath:     layers,
		OutputPath:     out,
		LayersOrder:    []string{"background", "eyes"},
		CollectionName: "Lame collection",
		Description:    "Something to describe",
		Workers:        2,
		Logger:         quietLogger(),
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestGenerateEndToEnd(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	var progressCalls atomic.Int32
	opts := baseOptions(twoCategoryLayers(t), out)
	opts.Progress = func(done, total int, _ ItemResult) {
		progressCalls.Add(1)
		if total != 3 || done < 1 || done > 3 {
			t.Errorf("progress(%d, %d) out of range", done, total)
		}
	}

	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if n := countFiles(t, filepath.Join(out, ImagesDir)); n != 3 {
		t.Errorf("images = %d, want 3", n)
	}
	if n := countFiles(t, filepath.Join(out, MetadataDir)); n != 3 {
		t.Errorf("metadata = %d, want 3", n)
	}
	for i := 0; i < 3; i++ {
		rec, err := metadata.Read(filepath.Join(out, MetadataDir, strconv.Itoa(i)))
		if err != nil {
			t.Fatal(err)
		}
		if len(rec.Attributes) != 2 {
			t.Errorf("item %d: %d attributes, want 2", i, len(rec.Attributes))
		}
		if !strings.HasSuffix(rec.Name, strconv.Itoa(i)) {
			t.Errorf("item %d: name %q does not end with its index", i, rec.Name)
		}
		if rec.Attributes[0].TraitType != "background" || rec.Attributes[1].Value != "open" {
			t.Errorf("item %d: attributes %+v", i, rec.Attributes)
		}
		if rec.Image != metadata.PlaceholderURI(i) {
			t.Errorf("item %d: image %q", i, rec.Image)
		}

		img, err := raster.Read(filepath.Join(out, ImagesDir, strconv.Itoa(i)+".png"))
		if err != nil {
			t.Fatal(err)
		}
		// eyes is on top and fully opaque
		if img.Pix[0] != 200 {
			t.Errorf("item %d: top pixel = %d, want 200", i, img.Pix[0])
		}
	}

	if report.Summary.OK != 3 || report.RunID == "" {
		t.Errorf("report = %+v", report)
	}
	if progressCalls.Load() != 3 {
		t.Errorf("progress called %d times, want 3", progressCalls.Load())
	}
	if _, err := ReadReport(out); err != nil {
		t.Errorf("report.json: %v", err)
	}
}

func TestGenerateUnknownCategoryWritesNothing(t *testing.T) {
	layers := twoCategoryLayers(t)
	writeLayer(t, filepath.Join(layers, "hats"), "cap.png", 4, 4, 1)
	out := filepath.Join(t.TempDir(), "out")

	_, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), baseOptions(layers, out))
	if !errors.Is(err, errors.ErrCodeUnknownLayer) {
		t.Fatalf("got %v, want %s", err, errors.ErrCodeUnknownLayer)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output directory should not exist, stat err = %v", err)
	}
}

// mismatchedLayers makes every item fail compositing.
func mismatchedLayers(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeLayer(t, filepath.Join(root, "background"), "blue.png", 4, 4, 10)
	writeLayer(t, filepath.Join(root, "eyes"), "open.png", 2, 2, 200)
	return root
}

func TestGenerateFailFast(t *testing.T) {
	out := t.TempDir()
	opts := baseOptions(mismatchedLayers(t), out)
	opts.Workers = 1

	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts)
	if !errors.Is(err, errors.ErrCodeDimensionMismatch) {
		t.Fatalf("got %v, want %s", err, errors.ErrCodeDimensionMismatch)
	}
	if report.Summary.Failed != 1 || report.Summary.Skipped != 2 {
		t.Errorf("summary = %+v, want 1 failed 2 skipped", report.Summary)
	}
	if it, _ := report.Item(0); it.ErrorCode != string(errors.ErrCodeDimensionMismatch) {
		t.Errorf("item 0 = %+v", it)
	}
}

func TestGenerateKeepGoing(t *testing.T) {
	opts := baseOptions(mismatchedLayers(t), t.TempDir())
	opts.KeepGoing = true

	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if report.Summary.Failed != 3 || report.Summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 3 failed", report.Summary)
	}
}

func TestGenerateResume(t *testing.T) {
	layers := mismatchedLayers(t)
	out := t.TempDir()
	opts := baseOptions(layers, out)
	opts.Workers = 1

	runner := NewRunner(nil, nil, quietLogger())
	if _, err := runner.Generate(context.Background(), opts); err == nil {
		t.Fatal("first run should fail")
	}

	// Fix the broken layer, then resume.
	writeLayer(t, filepath.Join(layers, "eyes"), "open.png", 4, 4, 200)
	resume := baseOptions(layers, out)
	resume.Count = 0
	resume.Resume = true

	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), resume)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if report.Summary.OK != 3 || report.Count != 3 {
		t.Errorf("summary = %+v count = %d, want 3 ok", report.Summary, report.Count)
	}
	if n := countFiles(t, filepath.Join(out, MetadataDir)); n != 3 {
		t.Errorf("metadata = %d, want 3", n)
	}
}

func TestGenerateIndicesSubset(t *testing.T) {
	out := t.TempDir()
	opts := baseOptions(twoCategoryLayers(t), out)
	opts.Count = 10
	opts.Indices = []int{7, 2}

	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.OK != 2 {
		t.Errorf("summary = %+v, want 2 ok", report.Summary)
	}
	for _, name := range []string{"2.png", "7.png"} {
		if _, err := os.Stat(filepath.Join(out, ImagesDir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	if n := countFiles(t, filepath.Join(out, ImagesDir)); n != 2 {
		t.Errorf("images = %d, want 2", n)
	}
}

func TestGenerateSeedReproducible(t *testing.T) {
	layers := t.TempDir()
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writeLayer(t, filepath.Join(layers, "background"), name, 2, 2, byte(10+i))
	}
	writeLayer(t, filepath.Join(layers, "eyes"), "open.png", 2, 2, 0)

	seed := uint64(1234)
	run := func() []string {
		out := t.TempDir()
		opts := baseOptions(layers, out)
		opts.Count = 8
		opts.Seed = &seed
		if _, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts); err != nil {
			t.Fatal(err)
		}
		entries, err := metadata.ReadAll(filepath.Join(out, MetadataDir))
		if err != nil {
			t.Fatal(err)
		}
		var values []string
		for _, e := range entries {
			values = append(values, e.Record.Attributes[0].Value)
		}
		return values
	}

	a, b := run(), run()
	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("seeded runs differ:\n%v\n%v", a, b)
	}
}

func TestGenerateColorTrait(t *testing.T) {
	out := t.TempDir()
	opts := baseOptions(twoCategoryLayers(t), out)
	opts.Count = 1
	opts.Color = colortrait.MethodKMeans

	if _, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	rec, err := metadata.Read(filepath.Join(out, MetadataDir, "0"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Attributes) != 3 {
		t.Fatalf("attributes = %+v, want 3", rec.Attributes)
	}
	if hex, ok := rec.Trait(colortrait.TraitType); !ok || hex != "#c8c8c8" {
		t.Errorf("dominant color = %q, %v; want #c8c8c8", hex, ok)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	indices map[int]string
}

func (p *recordingPublisher) Publish(_ context.Context, index int, rec metadata.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indices[index] = rec.Name
	return nil
}

func TestGeneratePublishes(t *testing.T) {
	pub := &recordingPublisher{indices: map[int]string{}}
	runner := NewRunner(nil, nil, quietLogger())
	runner.Publisher = pub

	if _, err := runner.Generate(context.Background(), baseOptions(twoCategoryLayers(t), t.TempDir())); err != nil {
		t.Fatal(err)
	}
	if len(pub.indices) != 3 || pub.indices[2] != "Lame collection #2" {
		t.Errorf("published = %v", pub.indices)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(nil, nil, quietLogger()).Generate(ctx, baseOptions(twoCategoryLayers(t), t.TempDir()))
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report.Summary.Skipped != 3 {
		t.Errorf("summary = %+v, want 3 skipped", report.Summary)
	}
}

func TestGenerateResumeUsesRecordedCollection(t *testing.T) {
	layers := mismatchedLayers(t)
	out := t.TempDir()
	opts := baseOptions(layers, out)
	opts.Workers = 1
	opts.Color = colortrait.MethodKMeans
	if _, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts); err == nil {
		t.Fatal("first run should fail")
	}

	prev, err := ReadReport(out)
	if err != nil {
		t.Fatal(err)
	}
	if prev.LayersPath != layers || strings.Join(prev.LayersOrder, ",") != "background,eyes" ||
		prev.Description != opts.Description || prev.ColorTrait != colortrait.MethodKMeans {
		t.Fatalf("report settings = %q %v %q %q", prev.LayersPath, prev.LayersOrder, prev.Description, prev.ColorTrait)
	}

	writeLayer(t, filepath.Join(layers, "eyes"), "open.png", 4, 4, 200)
	resume := Options{OutputPath: out, Resume: true, Logger: quietLogger()}
	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), resume)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if report.Summary.OK != 3 {
		t.Errorf("summary = %+v, want 3 ok", report.Summary)
	}

	entries, err := metadata.ReadAll(filepath.Join(out, MetadataDir))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		want := "Lame collection #" + strconv.Itoa(e.Index)
		if e.Record.Name != want || e.Record.Description != opts.Description {
			t.Errorf("record %d = %q / %q", e.Index, e.Record.Name, e.Record.Description)
		}
		if _, ok := e.Record.Trait(colortrait.TraitType); !ok {
			t.Errorf("record %d lost the color trait", e.Index)
		}
	}
}

func TestGenerateRejectsMixedCollection(t *testing.T) {
	layers := twoCategoryLayers(t)
	out := t.TempDir()
	if _, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), baseOptions(layers, out)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"collection name", func(o *Options) { o.CollectionName = "Other" }},
		{"description", func(o *Options) { o.Description = "changed" }},
		{"layers order", func(o *Options) { o.LayersOrder = []string{"eyes", "background"} }},
		{"layers path", func(o *Options) { o.LayersPath = t.TempDir() }},
		{"count", func(o *Options) { o.Count = 5 }},
		{"color trait", func(o *Options) { o.Color = colortrait.MethodDominant }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := baseOptions(layers, out)
			opts.Indices = []int{1}
			tt.mutate(&opts)
			_, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts)
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Fatalf("err = %v, want %s", err, errors.ErrCodeInvalidInput)
			}
		})
	}

	rec, err := metadata.Read(filepath.Join(out, MetadataDir, "1"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "Lame collection #1" {
		t.Errorf("rejected runs rewrote item 1: %q", rec.Name)
	}
}

func TestGenerateSubsetInheritsSettings(t *testing.T) {
	layers := twoCategoryLayers(t)
	out := t.TempDir()
	if _, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), baseOptions(layers, out)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(out, MetadataDir, "2")); err != nil {
		t.Fatal(err)
	}

	opts := Options{OutputPath: out, Indices: []int{2}, Logger: quietLogger()}
	report, err := NewRunner(nil, nil, quietLogger()).Generate(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.Count != 3 || report.Summary.OK != 3 {
		t.Errorf("count = %d summary = %+v, want 3 ok", report.Count, report.Summary)
	}
	rec, err := metadata.Read(filepath.Join(out, MetadataDir, "2"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "Lame collection #2" || len(rec.Attributes) != 2 {
		t.Errorf("record = %+v", rec)
	}
}
