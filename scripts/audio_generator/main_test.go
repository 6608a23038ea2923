package main

import (
	"context"
	"os"
	"sync"
	"testing"

	"soyle/internal/catalog"
	"soyle/internal/speech"
)

func TestCollectTexts(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	texts := collectTexts(cat)

	seen := map[string]bool{}
	for i, text := range texts {
		if seen[text] {
			t.Errorf("duplicate text %q", text)
		}
		seen[text] = true
		if i > 0 && texts[i-1] > text {
			t.Errorf("texts are not sorted at %d", i)
		}
	}
	for _, want := range []string{"Сәлем", "Рахмет", "Бұл менің отбасым."} {
		if !seen[want] {
			t.Errorf("missing %q", want)
		}
	}
}

type echoSynth struct{}

func (echoSynth) Name() string { return "echo" }

func (echoSynth) Synthesize(_ context.Context, req speech.Request) (speech.Audio, error) {
	return speech.Audio{Data: []byte(req.Text)}, nil
}

func TestWorker(t *testing.T) {
	dir := t.TempDir()
	jobs := make(chan string, 2)
	results := make(chan result, 2)
	jobs <- "Ана"
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(1)
	worker(context.Background(), &wg, echoSynth{}, dir, "kk-KZ", jobs, results)
	close(results)

	r := <-results
	if r.err != nil || !r.created {
		t.Fatalf("result = %+v", r)
	}
	data, err := os.ReadFile(r.path)
	if err != nil || string(data) != "Ана" {
		t.Errorf("file = %q, %v", data, err)
	}
}
