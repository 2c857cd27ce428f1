package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Admin operations against a local Ollama instance. The gateway's fallback
// generation backend runs there; these calls back /api/models so operators
// can manage VRAM without shelling into the host.

// ListModels returns the models installed in Ollama, embedding models
// filtered out.
func ListModels(ctx context.Context, ollamaURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ollamaURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		if !strings.Contains(m.Name, "embed") {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// LoadedModel describes a model currently resident in Ollama.
type LoadedModel struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ListLoaded returns the models currently loaded in Ollama VRAM via /api/ps.
func ListLoaded(ctx context.Context, ollamaURL string) ([]LoadedModel, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ollamaURL+"/api/ps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Models []LoadedModel `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Unload triggers Ollama to drop a model from VRAM and waits until the
// model is confirmed unloaded (or timeout).
func Unload(ctx context.Context, ollamaURL, model string) error {
	body, err := json.Marshal(map[string]any{"model": model, "keep_alive": 0, "stream": false})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", ollamaURL+"/api/generate", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unload status %d", resp.StatusCode)
	}

	// Poll /api/ps until the model is confirmed gone
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := ListLoaded(ctx, ollamaURL)
		if err != nil {
			return nil // best-effort
		}
		found := false
		for _, m := range loaded {
			if m.Name == model {
				found = true
			}
		}
		if !found {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("model %s still loaded after timeout", model)
}

// UnloadAll unloads every model currently loaded in Ollama VRAM.
func UnloadAll(ctx context.Context, ollamaURL string) error {
	loaded, err := ListLoaded(ctx, ollamaURL)
	if err != nil {
		return err
	}
	for _, m := range loaded {
		if err := Unload(ctx, ollamaURL, m.Name); err != nil {
			return fmt.Errorf("unload %s: %w", m.Name, err)
		}
	}
	return nil
}

// Preload triggers Ollama to load a model into VRAM ahead of first use.
func Preload(ctx context.Context, ollamaURL, model string) error {
	body, err := json.Marshal(map[string]any{"model": model, "keep_alive": -1})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", ollamaURL+"/api/generate", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama preload status %d", resp.StatusCode)
	}
	return nil
}
