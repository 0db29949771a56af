package chem

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScore(t *testing.T) {
	a := Fingerprint{0b1111_0000}
	b := Fingerprint{0b1100_1100}
	tan, err := Score(Tanimoto, a, b)
	if err != nil {
		t.Fatal(err)
	}
	// 2 shared bits, 6 in the union.
	if math.Abs(tan-2.0/6.0) > 1e-9 {
		t.Errorf("tanimoto = %v", tan)
	}
	dice, _ := Score(Dice, a, b)
	if math.Abs(dice-4.0/8.0) > 1e-9 {
		t.Errorf("dice = %v", dice)
	}
	if same, _ := Score(Tanimoto, a, a); same != 1 {
		t.Errorf("identical fingerprints should score 1, got %v", same)
	}
	if _, err := Score(Tanimoto, a, Fingerprint{1, 2}); err == nil {
		t.Errorf("expected length mismatch error")
	}
}

func TestParseSensitivity(t *testing.T) {
	tests := map[string]Sensitivity{
		"":                            AllLayers,
		"all_layers":                  AllLayers,
		"STEREO_INSENSITIVE_LAYERS":   StereoInsensitiveLayers,
		"tautomer_insensitive_layers": TautomerInsensitiveLayers,
	}
	for in, want := range tests {
		got, err := ParseSensitivity(in)
		if err != nil || got != want {
			t.Errorf("ParseSensitivity(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSensitivity("loose"); err == nil {
		t.Errorf("expected error")
	}
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hash":
			var req hashRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(hashResponse{Hash: req.Structure + "|" + string(req.Sensitivity)})
		case "/fingerprint":
			_ = json.NewEncoder(w).Encode(fingerprintResponse{Fingerprint: base64.StdEncoding.EncodeToString([]byte{0xff})})
		case "/substructure":
			_ = json.NewEncoder(w).Encode(substructureResponse{Match: true})
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Tanimoto, 0)
	ctx := context.Background()

	h, err := c.CanonicalHash(ctx, "CCO", StereoInsensitiveLayers)
	if err != nil || h != "CCO|STEREO_INSENSITIVE_LAYERS" {
		t.Errorf("CanonicalHash = %q, %v", h, err)
	}
	fp, err := c.Fingerprint(ctx, "CCO")
	if err != nil || len(fp) != 1 || fp[0] != 0xff {
		t.Errorf("Fingerprint = %v, %v", fp, err)
	}
	ok, err := c.HasSubstructure(ctx, "CCO", "CO")
	if err != nil || !ok {
		t.Errorf("HasSubstructure = %v, %v", ok, err)
	}
	if err := c.post(ctx, "/missing", struct{}{}, &struct{}{}); err == nil {
		t.Errorf("expected error for non-200 response")
	}
}
