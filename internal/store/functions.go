package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"modernc.org/sqlite"

	"github.com/aidanlsb/moltrack/internal/chem"
)

// SQLite has no chemistry cartridge, so structure predicates call back into
// the configured chemistry engine through these functions. SQLite function
// registration is process wide, hence the package-level engine.
var (
	chemMu       sync.RWMutex
	chemEngine   chem.Engine
	fingerprints *lru.Cache[string, chem.Fingerprint]
)

func init() {
	fingerprints, _ = lru.New[string, chem.Fingerprint](4096)

	sqlite.MustRegisterDeterministicScalarFunction("mol_similarity", 3, molSimilarity)
	sqlite.MustRegisterDeterministicScalarFunction("mol_substruct", 2, molSubstruct)
	sqlite.MustRegisterDeterministicScalarFunction("mol_equal", 3, molEqual)
	sqlite.MustRegisterDeterministicScalarFunction("agg_median", 1, aggMedian)
	sqlite.MustRegisterDeterministicScalarFunction("agg_stdev", 1, aggStdev)
}

// SetChemistry installs the engine used by SQLite structure predicates.
// Passing nil disables them.
func SetChemistry(e chem.Engine) {
	chemMu.Lock()
	defer chemMu.Unlock()
	chemEngine = e
	fingerprints.Purge()
}

func currentEngine() (chem.Engine, error) {
	chemMu.RLock()
	defer chemMu.RUnlock()
	if chemEngine == nil {
		return nil, fmt.Errorf("no chemistry engine configured")
	}
	return chemEngine, nil
}

func fingerprint(e chem.Engine, structure string) (chem.Fingerprint, error) {
	if fp, ok := fingerprints.Get(structure); ok {
		return fp, nil
	}
	fp, err := e.Fingerprint(context.Background(), structure)
	if err != nil {
		return nil, err
	}
	fingerprints.Add(structure, fp)
	return fp, nil
}

func molSimilarity(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	mol, ok1 := driverValueToString(args[0])
	q, ok2 := driverValueToString(args[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	metric, err := chem.ParseMetric(fmt.Sprint(args[2]))
	if err != nil {
		return nil, err
	}
	e, err := currentEngine()
	if err != nil {
		return nil, err
	}
	a, err := fingerprint(e, mol)
	if err != nil {
		return nil, err
	}
	b, err := fingerprint(e, q)
	if err != nil {
		return nil, err
	}
	return chem.Score(metric, a, b)
}

func molSubstruct(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	mol, ok1 := driverValueToString(args[0])
	q, ok2 := driverValueToString(args[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	e, err := currentEngine()
	if err != nil {
		return nil, err
	}
	m, ok := e.(chem.SubstructureMatcher)
	if !ok {
		return nil, fmt.Errorf("chemistry engine does not support substructure search")
	}
	found, err := m.HasSubstructure(context.Background(), mol, q)
	if err != nil {
		return nil, err
	}
	return boolInt(found), nil
}

func molEqual(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	mol, ok1 := driverValueToString(args[0])
	q, ok2 := driverValueToString(args[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	sens, err := chem.ParseSensitivity(fmt.Sprint(args[2]))
	if err != nil {
		return nil, err
	}
	e, err := currentEngine()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	a, err := e.CanonicalHash(ctx, mol, sens)
	if err != nil {
		return nil, err
	}
	b, err := e.CanonicalHash(ctx, q, sens)
	if err != nil {
		return nil, err
	}
	return boolInt(a == b), nil
}

// aggMedian and aggStdev take the JSON array built by json_group_array.
func aggMedian(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	xs, err := numbers(args[0])
	if err != nil || len(xs) == 0 {
		return nil, err
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid], nil
	}
	return (xs[mid-1] + xs[mid]) / 2, nil
}

func aggStdev(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	xs, err := numbers(args[0])
	if err != nil || len(xs) < 2 {
		return nil, err
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1)), nil
}

func numbers(v driver.Value) ([]float64, error) {
	s, ok := driverValueToString(v)
	if !ok {
		return nil, nil
	}
	var raw []*float64
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("aggregate input: %w", err)
	}
	xs := make([]float64, 0, len(raw))
	for _, x := range raw {
		if x != nil {
			xs = append(xs, *x)
		}
	}
	return xs, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func driverValueToString(v driver.Value) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprint(val), true
	}
}
