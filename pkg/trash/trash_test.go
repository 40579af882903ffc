package trash

import "testing"

func TestContainsMatchesNestedPaths(t *testing.T) {
	m := NewMatcher(DefaultSentinel)
	cases := []struct {
		path     string
		expected bool
	}{
		{".cozy_trash/facture.pdf", true},
		{".cozy_trash/sub/dir/file.txt", true},
		{".cozy_trash", true},
		{"Documents/facture.pdf", false},
		{"not.cozy_trash/file.txt", false},
	}
	for _, c := range cases {
		if got := m.Contains(c.path); got != c.expected {
			t.Errorf("Contains(%q) = %v, expected %v", c.path, got, c.expected)
		}
	}
}
