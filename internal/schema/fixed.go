package schema

// Column describes a fixed (non-dynamic) column of an entity level.
type Column struct {
	Name      string
	ValueType ValueType
	// Structure marks the virtual chemical structure column, which only
	// accepts structure operators.
	Structure bool
	// Representation marks stored renderings of the structure
	// (canonical_smiles, original_molfile). They support equality and
	// membership but not string pattern operators.
	Representation bool
}

var fixedColumns = map[EntityType][]Column{
	Compound: {
		{Name: "id", ValueType: TypeInt},
		{Name: "canonical_smiles", ValueType: TypeString, Representation: true},
		{Name: "original_molfile", ValueType: TypeString, Representation: true},
		{Name: "inchi", ValueType: TypeString},
		{Name: "inchikey", ValueType: TypeString},
		{Name: "formula", ValueType: TypeString},
		{Name: "hash_mol", ValueType: TypeString},
		{Name: "corporate_compound_id", ValueType: TypeString},
		{Name: "is_archived", ValueType: TypeBool},
		{Name: "created_at", ValueType: TypeDatetime},
		{Name: "updated_at", ValueType: TypeDatetime},
		{Name: "structure", ValueType: TypeString, Structure: true},
	},
	Batch: {
		{Name: "id", ValueType: TypeInt},
		{Name: "compound_id", ValueType: TypeInt},
		{Name: "batch_regno", ValueType: TypeInt},
		{Name: "corporate_batch_id", ValueType: TypeString},
		{Name: "notes", ValueType: TypeString},
		{Name: "created_at", ValueType: TypeDatetime},
		{Name: "updated_at", ValueType: TypeDatetime},
	},
	Addition: {
		{Name: "id", ValueType: TypeInt},
		{Name: "name", ValueType: TypeString},
		{Name: "formula", ValueType: TypeString},
		{Name: "molecular_weight", ValueType: TypeDouble},
		{Name: "role", ValueType: TypeString},
		{Name: "is_active", ValueType: TypeBool},
		{Name: "created_at", ValueType: TypeDatetime},
	},
	Assay: {
		{Name: "id", ValueType: TypeInt},
		{Name: "name", ValueType: TypeString},
		{Name: "description", ValueType: TypeString},
		{Name: "created_at", ValueType: TypeDatetime},
	},
	AssayRun: {
		{Name: "id", ValueType: TypeInt},
		{Name: "assay_id", ValueType: TypeInt},
		{Name: "name", ValueType: TypeString},
		{Name: "created_at", ValueType: TypeDatetime},
	},
	AssayResult: {
		{Name: "id", ValueType: TypeInt},
		{Name: "batch_id", ValueType: TypeInt},
		{Name: "assay_run_id", ValueType: TypeInt},
		{Name: "created_at", ValueType: TypeDatetime},
	},
}

// FixedColumns returns the fixed columns of an entity level in declaration
// order.
func FixedColumns(et EntityType) []Column {
	return fixedColumns[et]
}

// FixedColumn looks up a fixed column by name.
func FixedColumn(et EntityType, name string) (Column, bool) {
	for _, c := range fixedColumns[et] {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsReservedName reports whether name collides with a fixed column of et.
// "smiles" is reserved everywhere since record payloads use it for the
// input structure.
func IsReservedName(et EntityType, name string) bool {
	if name == "smiles" {
		return true
	}
	_, ok := FixedColumn(et, name)
	return ok
}
