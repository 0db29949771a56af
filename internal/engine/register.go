package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/store"
	"github.com/aidanlsb/moltrack/internal/validation"
)

// AdditionsKey lists the addition ids a batch row is linked to.
const AdditionsKey = "additions"

// RowWrite is the stored id of one written row, or why writing it failed.
type RowWrite struct {
	Row   int    `json:"row"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Registration reports what RegisterEntities did with each row.
type Registration struct {
	Policy   validation.Policy      `json:"policy"`
	Written  []RowWrite             `json:"written"`
	Rejected []validation.RowResult `json:"rejected"`
	Failed   []RowWrite             `json:"failed"`
}

// entityRow is a validated row split by where its fields are stored.
type entityRow struct {
	fixed     map[string]any
	details   []detail
	synonyms  []synonym
	additions []int64
}

type detail struct {
	prop  *schema.Property
	value schema.Value
}

type synonym struct {
	st    *schema.SynonymType
	value string
}

// RegisterEntities validates rows and writes the accepted ones. Under
// reject_all nothing is written unless every row validates, and the rows
// are written in one transaction. Under reject_row each accepted row is
// written in its own transaction; a row that fails to write is reported
// and the rest continue. An empty policy uses the configured one.
func (e *Engine) RegisterEntities(ctx context.Context, et schema.EntityType, rows []map[string]any, policy validation.Policy) (*Registration, error) {
	batch, err := e.ValidateRows(ctx, et, rows, policy)
	if err != nil {
		return nil, err
	}
	out := &Registration{Policy: batch.Policy, Written: []RowWrite{}, Rejected: batch.Rejected, Failed: []RowWrite{}}
	if len(batch.Accepted) == 0 {
		return out, nil
	}
	s, err := e.registry.Get(ctx, et)
	if err != nil {
		return nil, fmt.Errorf("load %s schema: %w", et, err)
	}

	if batch.Policy == validation.RejectAll {
		split := make([]*entityRow, len(batch.Accepted))
		for i, idx := range batch.Accepted {
			r, err := e.splitRow(ctx, s, rows[idx])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", idx, err)
			}
			split[i] = r
		}
		var written []RowWrite
		err := e.db.InTx(ctx, func(tx *store.Tx) error {
			written = written[:0]
			for i, idx := range batch.Accepted {
				id, err := writeRow(ctx, tx, et, split[i])
				if err != nil {
					return fmt.Errorf("row %d: %w", idx, err)
				}
				written = append(written, RowWrite{Row: idx, ID: id})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out.Written = written
		e.logger.Info("entities registered", "entity_type", et, "policy", batch.Policy, "written", len(written))
		return out, nil
	}

	for _, idx := range batch.Accepted {
		r, err := e.splitRow(ctx, s, rows[idx])
		if err == nil {
			var id int64
			err = e.db.InTx(ctx, func(tx *store.Tx) error {
				id, err = writeRow(ctx, tx, et, r)
				return err
			})
			if err == nil {
				out.Written = append(out.Written, RowWrite{Row: idx, ID: id})
				continue
			}
		}
		out.Failed = append(out.Failed, RowWrite{Row: idx, Error: err.Error()})
	}
	e.logger.Info("entities registered", "entity_type", et, "policy", batch.Policy,
		"written", len(out.Written), "rejected", len(out.Rejected), "failed", len(out.Failed))
	return out, nil
}

// splitRow sorts the fields of a row into fixed columns, detail values,
// synonyms and addition links. A compound's "smiles" is stored as its
// canonical_smiles and hashed when a chemistry engine is configured.
func (e *Engine) splitRow(ctx context.Context, s *schema.Schema, row map[string]any) (*entityRow, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &entityRow{fixed: map[string]any{}}
	for _, name := range names {
		raw := row[name]
		if p, ok := s.Property(name); ok {
			v, err := schema.Coerce(p.ValueType, raw)
			if err != nil {
				return nil, err
			}
			if !v.IsNull() {
				r.details = append(r.details, detail{prop: p, value: v})
			}
			continue
		}
		if st, ok := s.SynonymType(name); ok {
			if raw == nil {
				continue
			}
			value, ok := raw.(string)
			if !ok {
				return nil, errs.New(errs.TypeMismatch, "synonym %s: expected string, got %T", name, raw).WithField(name)
			}
			r.synonyms = append(r.synonyms, synonym{st: st, value: value})
			continue
		}

		switch {
		case name == "smiles" && s.EntityType == schema.Compound:
			r.fixed["canonical_smiles"] = raw
		case name == AdditionsKey && s.EntityType == schema.Batch:
			ids, err := additionIDs(raw)
			if err != nil {
				return nil, err
			}
			r.additions = ids
		default:
			col, ok := schema.FixedColumn(s.EntityType, name)
			if !ok || col.Structure || name == "id" {
				return nil, errs.New(errs.UnknownField, "%s is not a writable field of %s", name, s.EntityType).WithField(name)
			}
			r.fixed[name] = raw
		}
	}

	if smiles, ok := r.fixed["canonical_smiles"].(string); ok && e.chem != nil && r.fixed["hash_mol"] == nil {
		hash, err := e.chem.CanonicalHash(ctx, smiles, e.compile.Sensitivity)
		if err != nil {
			return nil, fmt.Errorf("hash structure: %w", err)
		}
		r.fixed["hash_mol"] = hash
	}
	return r, nil
}

func additionIDs(raw any) ([]int64, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errs.New(errs.TypeMismatch, "%s: expected a list of addition ids, got %T", AdditionsKey, raw).WithField(AdditionsKey)
	}
	ids := make([]int64, 0, len(list))
	for _, item := range list {
		v, err := schema.Coerce(schema.TypeInt, item)
		if err != nil {
			return nil, err
		}
		id, ok := v.AsInt()
		if !ok {
			return nil, errs.New(errs.TypeMismatch, "%s: addition id is required", AdditionsKey).WithField(AdditionsKey)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeRow(ctx context.Context, tx *store.Tx, et schema.EntityType, r *entityRow) (int64, error) {
	id, err := tx.InsertEntity(ctx, et, r.fixed)
	if err != nil {
		return 0, err
	}
	for _, d := range r.details {
		if err := tx.SetDetail(ctx, et, id, d.prop, d.value); err != nil {
			return 0, err
		}
	}
	for _, syn := range r.synonyms {
		if err := tx.AddSynonym(ctx, et, id, syn.st, syn.value); err != nil {
			return 0, err
		}
	}
	for _, additionID := range r.additions {
		if err := tx.LinkAddition(ctx, id, additionID); err != nil {
			return 0, err
		}
	}
	return id, nil
}
