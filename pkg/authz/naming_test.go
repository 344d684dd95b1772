package authz

import "testing"

func TestJoin(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		delim string
		want  string
	}{
		{name: "empty", items: []string{}, delim: ",", want: ""},
		{name: "nil", items: nil, delim: ",", want: ""},
		{name: "single", items: []string{"a"}, delim: ",", want: "a"},
		{name: "many", items: []string{"a", "b", "c"}, delim: ",", want: "a,b,c"},
		{name: "paths", items: []string{"/data/raw", "/data/curated"}, delim: ",", want: "/data/raw,/data/curated"},
		{name: "multi-char delimiter", items: []string{"a", "b"}, delim: ", ", want: "a, b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Join(tt.items, tt.delim); got != tt.want {
				t.Errorf("Join(%q, %q) = %q, want %q", tt.items, tt.delim, got, tt.want)
			}
		})
	}
}

func TestHivePolicyName(t *testing.T) {
	if got := HivePolicyName("ingest", "orders"); got != "kylo_ingest_orders_hive" {
		t.Errorf("HivePolicyName = %q, want kylo_ingest_orders_hive", got)
	}
}

func TestPolicyName_Deterministic(t *testing.T) {
	a := PolicyName("ingest", "orders", RepositoryHive)
	b := PolicyName("ingest", "orders", RepositoryHive)
	if a != b {
		t.Errorf("same inputs produced %q and %q", a, b)
	}

	if PolicyName("ingest", "orders", RepositoryHive) == PolicyName("ingest", "returns", RepositoryHive) {
		t.Error("different feeds must produce different names")
	}
	if PolicyName("ingest", "orders", RepositoryHive) == PolicyName("sales", "orders", RepositoryHive) {
		t.Error("different categories must produce different names")
	}
	if PolicyName("ingest", "orders", RepositoryHive) == PolicyName("ingest", "orders", RepositoryHdfs) {
		t.Error("different repositories must produce different names")
	}
}

// Underscores are not escaped; this pins the known collision so a change in
// the naming scheme is a deliberate one.
func TestPolicyName_UnderscoreCollision(t *testing.T) {
	a := HivePolicyName("a_b", "c")
	b := HivePolicyName("a", "b_c")
	if a != b {
		t.Errorf("expected collision, got %q and %q", a, b)
	}
}
