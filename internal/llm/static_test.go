package llm

import (
	"context"
	"math"
	"testing"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "quarterly budget planning")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	b, err := e.Embed(ctx, "quarterly budget planning")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	if len(a) != 128 {
		t.Fatalf("Expected dimension 128, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Expected identical embeddings for identical text, diverged at %d", i)
		}
	}
}

func TestStaticEmbedderNormalized(t *testing.T) {
	e := NewStaticEmbedder(128)
	vec, err := e.Embed(context.Background(), "some text with several tokens")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("Expected unit norm, got %v", norm)
	}
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to embed empty text: %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("Expected zero vector for empty text, got %v at %d", v, i)
		}
	}
}

func TestStaticEmbedderDefaults(t *testing.T) {
	e := NewStaticEmbedder(0)
	if e.Dimension() != 256 {
		t.Errorf("Expected default dimension 256, got %d", e.Dimension())
	}
	if e.GetModel() != "static-hash" {
		t.Errorf("Expected model static-hash, got %q", e.GetModel())
	}
}
