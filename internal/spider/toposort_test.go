package spider

import (
	"strings"
	"testing"
)

func TestTopoSort(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []string
		edges    [][2]string
		expected string
		ok       bool
	}{
		{"no edges keeps order", []string{"a", "b", "c"}, nil, "a,b,c", true},
		{"chain", []string{"idx", "c", "a", "b"}, [][2]string{{"a", "b"}, {"b", "c"}}, "idx,a,b,c", true},
		{"unknown nodes ignored", []string{"a", "b"}, [][2]string{{"b", "a"}, {"x", "a"}}, "b,a", true},
		{"self loop ignored", []string{"a", "b"}, [][2]string{{"a", "a"}}, "a,b", true},
		{"cycle", []string{"a", "b", "c"}, [][2]string{{"b", "c"}, {"c", "b"}}, "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, ok := topoSort(tt.nodes, tt.edges)
			if ok != tt.ok {
				t.Errorf("Expected ok %v, got %v", tt.ok, ok)
			}

			items := append([]string(nil), tt.nodes...)
			applyOrder(items, func(s string) string { return s }, order)
			placed := items[:len(order)]
			if got := strings.Join(placed, ","); got != tt.expected {
				t.Errorf("Expected order %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestOrderOfSentinel(t *testing.T) {
	order := map[string]int{"a": 0}
	if orderOf(order, "missing") != sentinelOrder {
		t.Error("Expected unplaced nodes to get the sentinel order")
	}

	items := []string{"missing", "a"}
	applyOrder(items, func(s string) string { return s }, order)
	if items[0] != "a" {
		t.Errorf("Expected unplaced nodes last, got %v", items)
	}
}
