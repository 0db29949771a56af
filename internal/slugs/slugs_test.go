package slugs

import "testing"

func TestColumnAlias(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"AVG", "assay_results.details.ic50"}, "avg_assay_results_details_ic50"},
		{[]string{"CONCAT UNIQUE", "batches.details.supplier"}, "concat_unique_batches_details_supplier"},
		{[]string{"compounds.canonical_smiles"}, "compounds_canonical_smiles"},
		{[]string{"MAX", "assays.details.pIC50 (nM)"}, "max_assays_details_pic50_nm"},
		{[]string{"1st"}, "c_1st"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ColumnAlias(tt.parts...); got != tt.want {
				t.Errorf("ColumnAlias(%v) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}
