package models

import "testing"

func TestAggregateStage_PoolsMinimums(t *testing.T) {
	doc := testDoc(
		itemRow(DeptPacking, 1, "Mesh", 50, 30, 20),
		itemRow(DeptPacking, 2, "Sole", 35, 32, 10),
		itemRow(DeptPacking, 3, "Lace", 60, 25, 25),
		itemRow(DeptCutting, 4, "Foam", 5, 0, 0), // other stage, ignored
	)
	agg := AggregateStage(doc, DeptPacking)
	if agg == nil {
		t.Fatal("aggregate = nil")
	}
	if agg.ItemCount != 3 {
		t.Fatalf("item count = %d", agg.ItemCount)
	}
	if !agg.ReceivedQty.Equal(qty(35)) {
		t.Fatalf("pooled received = %s, want 35", agg.ReceivedQty)
	}
	if !agg.CompletedQty.Equal(qty(25)) {
		t.Fatalf("pooled completed = %s, want 25", agg.CompletedQty)
	}
	if !agg.TransferredQty.Equal(qty(10)) {
		t.Fatalf("pooled transferred = %s, want 10", agg.TransferredQty)
	}
	if agg.BottleneckItem != "Sole" {
		t.Fatalf("bottleneck = %q, want Sole (smallest received)", agg.BottleneckItem)
	}
}

func TestAggregateStage_FirstRowWinsTies(t *testing.T) {
	doc := testDoc(
		itemRow(DeptRFD, 1, "Mesh", 10, 0, 0),
		itemRow(DeptRFD, 2, "Sole", 10, 0, 0),
	)
	agg := AggregateStage(doc, DeptRFD)
	if agg.BottleneckItem != "Mesh" {
		t.Fatalf("tie bottleneck = %q, want first row", agg.BottleneckItem)
	}
}

func TestAggregateStage_EmptyStageIsNil(t *testing.T) {
	doc := testDoc(itemRow(DeptCutting, 1, "Mesh", 10, 0, 0))
	if agg := AggregateStage(doc, DeptAssembly); agg != nil {
		t.Fatalf("empty stage aggregate = %+v, want nil", agg)
	}
}
