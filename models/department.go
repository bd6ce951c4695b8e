package models

import "strings"

// Department is one stage in the fixed manufacturing sequence. Internal code
// only ever compares Department values; raw strings are normalized once at
// the boundary via NormalizeDepartment.
type Department string

const (
	DeptCutting  Department = "cutting"
	DeptPrinting Department = "printing"
	DeptUpper    Department = "upper"
	DeptUpperRej Department = "upper_rej"
	DeptAssembly Department = "assembly"
	DeptPacking  Department = "packing"
	DeptRFD      Department = "rfd"
)

// departmentOrder is the fixed process sequence. upper_rej is a rework
// branch reachable only from upper and is skipped by default successor
// lookups; transfers into it always name it explicitly.
var departmentOrder = []Department{
	DeptCutting,
	DeptPrinting,
	DeptUpper,
	DeptUpperRej,
	DeptAssembly,
	DeptPacking,
	DeptRFD,
}

// aggregateDepartments are tracked as pooled per-card quantities; item
// identity only matters for matching rows across a transfer.
var aggregateDepartments = map[Department]bool{
	DeptAssembly: true,
	DeptPacking:  true,
	DeptRFD:      true,
}

var departmentAliases = map[string]Department{
	"cutting":            DeptCutting,
	"cut":                DeptCutting,
	"printing":           DeptPrinting,
	"print":              DeptPrinting,
	"upper":              DeptUpper,
	"upper_rej":          DeptUpperRej,
	"upperrej":           DeptUpperRej,
	"upper_rejection":    DeptUpperRej,
	"rejection":          DeptUpperRej,
	"assembly":           DeptAssembly,
	"assembling":         DeptAssembly,
	"packing":            DeptPacking,
	"packaging":          DeptPacking,
	"rfd":                DeptRFD,
	"ready_for_delivery": DeptRFD,
}

func FirstDepartment() Department {
	return departmentOrder[0]
}

func AllDepartments() []Department {
	out := make([]Department, len(departmentOrder))
	copy(out, departmentOrder)
	return out
}

func (d Department) IsValid() bool {
	for _, dept := range departmentOrder {
		if dept == d {
			return true
		}
	}
	return false
}

func (d Department) IsAggregate() bool {
	return aggregateDepartments[d]
}

// Next returns the default transfer target. The rework branch is skipped:
// upper advances to assembly unless the caller names upper_rej explicitly,
// and rework itself re-enters the main line at assembly.
func (d Department) Next() (Department, bool) {
	switch d {
	case DeptUpper, DeptUpperRej:
		return DeptAssembly, true
	case DeptRFD:
		return "", false
	}
	for i, dept := range departmentOrder {
		if dept == d && i+1 < len(departmentOrder) {
			return departmentOrder[i+1], true
		}
	}
	return "", false
}

// NormalizeDepartment canonicalizes case, separators and camelCase aliases
// ("upperRej", "upper-rej" -> upper_rej). ok is false for unknown names;
// the caller decides whether to fall back or reject.
func NormalizeDepartment(raw string) (Department, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	// split camelCase before lowering so "upperRej" becomes "upper_rej"
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	s = strings.ToLower(b.String())
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	dept, ok := departmentAliases[s]
	return dept, ok
}

// NormalizeDepartmentOrFirst is the permissive variant used for card item
// tags, where upstream data is known to be dirty: an unrecognized name maps
// to the first stage instead of failing the whole card.
func NormalizeDepartmentOrFirst(raw string) Department {
	if dept, ok := NormalizeDepartment(raw); ok {
		return dept
	}
	return FirstDepartment()
}
