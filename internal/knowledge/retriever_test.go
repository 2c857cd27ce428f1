package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": [][]float64{{0.1, 0.2, 0.3}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRetrieveContextJoinsPassages(t *testing.T) {
	t.Parallel()

	embedSrv := fakeEmbedServer(t)
	qdrantSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/agronomy/points/search" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"id": "1", "score": 0.91, "payload": map[string]interface{}{"text": "Le blé tendre se sème en octobre."}},
				{"id": "2", "score": 0.84, "payload": map[string]interface{}{"text": "Semer à 2 cm de profondeur."}},
			},
		})
	}))
	t.Cleanup(qdrantSrv.Close)

	r := NewRetriever(RetrieverConfig{
		Embedder:   NewEmbedder(embedSrv.URL, "nomic-embed-text", embedSrv.Client()),
		Qdrant:     NewQdrant(qdrantSrv.URL, qdrantSrv.Client()),
		Collection: "agronomy",
	})

	got, err := r.RetrieveContext(context.Background(), "quand semer le blé ?")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if !strings.Contains(got, "Le blé tendre se sème en octobre.") || !strings.Contains(got, "Semer à 2 cm de profondeur.") {
		t.Errorf("context missing passages: %q", got)
	}
	if !strings.Contains(got, "\n---\n") {
		t.Errorf("passages not separated: %q", got)
	}
}

func TestRetrieveContextEmptyWhenNoHits(t *testing.T) {
	t.Parallel()

	embedSrv := fakeEmbedServer(t)
	qdrantSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []map[string]interface{}{}})
	}))
	t.Cleanup(qdrantSrv.Close)

	r := NewRetriever(RetrieverConfig{
		Embedder:   NewEmbedder(embedSrv.URL, "nomic-embed-text", embedSrv.Client()),
		Qdrant:     NewQdrant(qdrantSrv.URL, qdrantSrv.Client()),
		Collection: "agronomy",
	})

	got, err := r.RetrieveContext(context.Background(), "question sans réponse")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if got != "" {
		t.Errorf("context = %q, want empty", got)
	}
}

func TestRetrieveContextPropagatesEmbedFailure(t *testing.T) {
	t.Parallel()

	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(embedSrv.Close)

	r := NewRetriever(RetrieverConfig{
		Embedder:   NewEmbedder(embedSrv.URL, "nomic-embed-text", embedSrv.Client()),
		Qdrant:     NewQdrant("http://unused", embedSrv.Client()),
		Collection: "agronomy",
	})

	if _, err := r.RetrieveContext(context.Background(), "quand semer ?"); err == nil {
		t.Fatal("expected an error from the failing embedder")
	}
}
