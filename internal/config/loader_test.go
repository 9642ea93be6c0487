package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREDENTIALS_JSON", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RAG.TopKFast != 15 {
		t.Errorf("TopKFast = %d, want 15", cfg.RAG.TopKFast)
	}
	if cfg.RAG.ChunkTokens != 1000 || cfg.RAG.ChunkOverlap != 100 {
		t.Errorf("chunking defaults = %d/%d, want 1000/100", cfg.RAG.ChunkTokens, cfg.RAG.ChunkOverlap)
	}
	if cfg.Whisper.WindowMS != 180000 {
		t.Errorf("WindowMS = %d, want 180000", cfg.Whisper.WindowMS)
	}
	if cfg.RAG.SavePeriod != 900 {
		t.Errorf("SavePeriod = %d, want 900", cfg.RAG.SavePeriod)
	}
	if cfg.DeepSearchDefault {
		t.Error("DeepSearchDefault should default to false")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("CREDENTIALS_JSON", `[{"id":"c1","secret":"s1","tpm":80000,"rpm":2000},{"id":"c2","secret":"s2","tpm":20000,"rpm":50}]`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Credentials) != 2 {
		t.Fatalf("len(Credentials) = %d, want 2", len(cfg.Credentials))
	}
	if cfg.Credentials[0].ID != "c1" || cfg.Credentials[0].TPM != 80000 {
		t.Errorf("Credentials[0] = %+v", cfg.Credentials[0])
	}
}

func TestLoadCredentialsInvalidJSON(t *testing.T) {
	t.Setenv("CREDENTIALS_JSON", "not json")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed CREDENTIALS_JSON")
	}
}
