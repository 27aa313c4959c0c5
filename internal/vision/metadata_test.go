package vision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func validMetadata() *Metadata {
	return &Metadata{
		ModelName:   "efficientnet_b0",
		InputName:   "input",
		OutputName:  "features",
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, 7, 7, 1280},
		ImageSize:   224,
		Layout:      LayoutNHWC,
		Scale:       ScaleRaw,
	}
}

func writeMetadata(t *testing.T, md *Metadata) string {
	t.Helper()
	data, err := json.Marshal(md)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	return path
}

func TestLoadMetadata(t *testing.T) {
	md, err := LoadMetadata(writeMetadata(t, validMetadata()))
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}

	if md.ModelName != "efficientnet_b0" {
		t.Errorf("model name = %q", md.ModelName)
	}
	if md.FeatureSize() != 7*7*1280 {
		t.Errorf("feature size = %d, want %d", md.FeatureSize(), 7*7*1280)
	}
	if md.TensorSize() != 224*224*3 {
		t.Errorf("tensor size = %d, want %d", md.TensorSize(), 224*224*3)
	}
}

func TestLoadMetadataDefaults(t *testing.T) {
	md := validMetadata()
	md.Layout = ""
	md.Scale = ""

	loaded, err := LoadMetadata(writeMetadata(t, md))
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if loaded.Layout != LayoutNHWC {
		t.Errorf("layout defaulted to %q, want %q", loaded.Layout, LayoutNHWC)
	}
	if loaded.Scale != ScaleRaw {
		t.Errorf("scale defaulted to %q, want %q", loaded.Scale, ScaleRaw)
	}
}

func TestLoadMetadataNCHW(t *testing.T) {
	md := validMetadata()
	md.InputShape = []int64{1, 3, 224, 224}
	md.Layout = LayoutNCHW
	md.Scale = ScaleUnit

	if _, err := LoadMetadata(writeMetadata(t, md)); err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
}

func TestLoadMetadataRejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(md *Metadata)
	}{
		{"missing input name", func(md *Metadata) { md.InputName = "" }},
		{"missing output name", func(md *Metadata) { md.OutputName = "" }},
		{"wrong input rank", func(md *Metadata) { md.InputShape = []int64{224, 224, 3} }},
		{"short output shape", func(md *Metadata) { md.OutputShape = []int64{1} }},
		{"batched input", func(md *Metadata) { md.InputShape = []int64{8, 224, 224, 3} }},
		{"batched output", func(md *Metadata) { md.OutputShape = []int64{2, 7, 7, 1280} }},
		{"negative dim", func(md *Metadata) { md.InputShape = []int64{1, -1, 224, 3} }},
		{"wrong channels", func(md *Metadata) { md.InputShape = []int64{1, 224, 224, 1} }},
		{"size mismatch", func(md *Metadata) { md.ImageSize = 128 }},
		{"zero image size", func(md *Metadata) { md.ImageSize = 0 }},
		{"unknown layout", func(md *Metadata) { md.Layout = "hwcn" }},
		{"unknown scale", func(md *Metadata) { md.Scale = "imagenet" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			md := validMetadata()
			tc.mutate(md)
			if _, err := LoadMetadata(writeMetadata(t, md)); err == nil {
				t.Error("LoadMetadata accepted invalid metadata")
			}
		})
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	if _, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadMetadata should fail for a missing file")
	}
}
