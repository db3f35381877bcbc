package settings

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/model"
)

type memoryKV struct {
	values map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string)}
}

func (kv *memoryKV) Get(_ context.Context, namespace, key string) (string, bool, error) {
	value, ok := kv.values[namespace+"/"+key]
	return value, ok, nil
}

func (kv *memoryKV) Set(_ context.Context, namespace, key, value string) error {
	kv.values[namespace+"/"+key] = value
	return nil
}

func newTestService(kv KV) *Service {
	return NewService(kv, nil, 0, zap.NewNop())
}

func TestResolveStructuralWhenUnset(t *testing.T) {
	svc := newTestService(newMemoryKV())
	ctx := context.Background()

	if got := svc.DefaultResources(ctx); got != StructuralDefaults {
		t.Fatalf("expected structural defaults, got %+v", got)
	}
	if got := svc.MaxResources(ctx); got != StructuralMaximums {
		t.Fatalf("expected structural maximums, got %+v", got)
	}
}

func TestResolveStructuralOnGarbage(t *testing.T) {
	kv := newMemoryKV()
	kv.values[Namespace+"/"+KeyDefaultResources] = "{not json"
	svc := newTestService(kv)

	if got := svc.DefaultResources(context.Background()); got != StructuralDefaults {
		t.Fatalf("garbage must degrade to structural defaults, got %+v", got)
	}
}

func TestResolveDecodesEntityEncodedJSON(t *testing.T) {
	kv := newMemoryKV()
	kv.values[Namespace+"/"+KeyDefaultResources] = "{&quot;memory_limit&quot;:8192,&quot;cpu_limit&quot;:300}"
	svc := newTestService(kv)

	got := svc.DefaultResources(context.Background())
	if got.Memory != 8192 || got.CPU != 300 {
		t.Fatalf("expected decoded overrides, got %+v", got)
	}
	if got.Disk != StructuralDefaults.Disk {
		t.Fatalf("absent keys must fall back, got disk %d", got.Disk)
	}
}

func TestResolvePreservesExplicitZero(t *testing.T) {
	kv := newMemoryKV()
	kv.values[Namespace+"/"+KeyDefaultResources] = `{"backup_limit":0}`
	svc := newTestService(kv)

	got := svc.DefaultResources(context.Background())
	if got.Backups != 0 {
		t.Fatalf("stored zero must win over the structural default, got %d", got.Backups)
	}
}

func TestResolveIgnoresNegativeAndUnknownKeys(t *testing.T) {
	kv := newMemoryKV()
	kv.values[Namespace+"/"+KeyMaxResources] = `{"cpu_limit":-5,"gpu_limit":9}`
	svc := newTestService(kv)

	got := svc.MaxResources(context.Background())
	if got != StructuralMaximums {
		t.Fatalf("negative and unknown keys must be dropped, got %+v", got)
	}
}

func TestSetMaxResourcesPartialWriteRoundTrip(t *testing.T) {
	svc := newTestService(newMemoryKV())
	ctx := context.Background()

	err := svc.SetMaxResources(ctx, map[model.ResourceType]int{
		model.ResourceCPU: 500,
	})
	if err != nil {
		t.Fatalf("SetMaxResources error: %v", err)
	}

	got := svc.MaxResources(ctx)
	want := StructuralMaximums
	want.CPU = 500
	if got != want {
		t.Fatalf("expected partial write backfilled from structural values, want %+v got %+v", want, got)
	}
}

func TestSetDefaultResourcesStoresCompleteBlob(t *testing.T) {
	kv := newMemoryKV()
	svc := newTestService(kv)
	ctx := context.Background()

	err := svc.SetDefaultResources(ctx, map[model.ResourceType]int{
		model.ResourceMemory: 1024,
	})
	if err != nil {
		t.Fatalf("SetDefaultResources error: %v", err)
	}

	raw, ok, _ := kv.Get(ctx, Namespace, KeyDefaultResources)
	if !ok {
		t.Fatalf("expected a stored blob")
	}
	// A reader with no structural knowledge must still see every field.
	for _, typ := range model.ResourceTypes {
		if !strings.Contains(raw, `"`+string(typ)+`"`) {
			t.Fatalf("stored blob missing %s: %s", typ, raw)
		}
	}

	got := svc.DefaultResources(ctx)
	if got.Memory != 1024 || got.Servers != StructuralDefaults.Servers {
		t.Fatalf("unexpected resolved vector %+v", got)
	}
}
