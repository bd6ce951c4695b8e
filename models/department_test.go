package models

import "testing"

func TestNormalizeDepartment_Aliases(t *testing.T) {
	cases := []struct {
		raw  string
		want Department
		ok   bool
	}{
		{"cutting", DeptCutting, true},
		{"CUTTING", DeptCutting, true},
		{"  cut  ", DeptCutting, true},
		{"printing", DeptPrinting, true},
		{"upper", DeptUpper, true},
		{"upperRej", DeptUpperRej, true},
		{"upper-rej", DeptUpperRej, true},
		{"upper_rej", DeptUpperRej, true},
		{"Upper Rej", DeptUpperRej, true},
		{"assembly", DeptAssembly, true},
		{"packaging", DeptPacking, true},
		{"rfd", DeptRFD, true},
		{"Ready For Delivery", DeptRFD, true},
		{"warehouse", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeDepartment(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeDepartment(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeDepartmentOrFirst_FallsBackToFirstStage(t *testing.T) {
	if got := NormalizeDepartmentOrFirst("no-such-dept"); got != DeptCutting {
		t.Fatalf("fallback = %q, want %q", got, DeptCutting)
	}
	if got := NormalizeDepartmentOrFirst("packing"); got != DeptPacking {
		t.Fatalf("known name = %q, want %q", got, DeptPacking)
	}
}

func TestDepartmentNext_SkipsReworkBranch(t *testing.T) {
	cases := []struct {
		dept Department
		want Department
		ok   bool
	}{
		{DeptCutting, DeptPrinting, true},
		{DeptPrinting, DeptUpper, true},
		{DeptUpper, DeptAssembly, true},
		{DeptUpperRej, DeptAssembly, true},
		{DeptAssembly, DeptPacking, true},
		{DeptPacking, DeptRFD, true},
		{DeptRFD, "", false},
	}
	for _, tc := range cases {
		got, ok := tc.dept.Next()
		if ok != tc.ok || got != tc.want {
			t.Errorf("%s.Next() = (%q, %v), want (%q, %v)", tc.dept, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDepartmentStageClass(t *testing.T) {
	itemTracked := []Department{DeptCutting, DeptPrinting, DeptUpper, DeptUpperRej}
	for _, dept := range itemTracked {
		if dept.IsAggregate() {
			t.Errorf("%s should be item-tracked", dept)
		}
	}
	aggregate := []Department{DeptAssembly, DeptPacking, DeptRFD}
	for _, dept := range aggregate {
		if !dept.IsAggregate() {
			t.Errorf("%s should be aggregate", dept)
		}
	}
}
