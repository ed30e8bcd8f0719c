package memory

import (
	"context"
	"errors"
	"strings"
)

// fakeEmbedder maps text onto a 3-dimensional bag of topic counts.
type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	t := strings.ToLower(text)
	return []float32{
		float32(strings.Count(t, "css")),
		float32(strings.Count(t, "html")),
		float32(strings.Count(t, "go")) + 0.01,
	}, nil
}

func (f *fakeEmbedder) Name() string { return "fake" }
