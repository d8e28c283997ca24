package accounting

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed chart.json
var defaultChart []byte

// DefaultChart returns the embedded chart of accounts.
func DefaultChart() []byte {
	return defaultChart
}

type chartNode struct {
	Name     string               `json:"name"`
	Type     AccountType          `json:"type,omitempty"`
	Nature   Nature               `json:"nature,omitempty"`
	Children map[string]chartNode `json:"children,omitempty"`
}

// ChartAccount is one flattened chart node, listed parents first.
type ChartAccount struct {
	Code       string
	Name       string
	ParentCode string
	Level      int
	Type       AccountType
	Nature     Nature
}

// ParseChart walks the nested chart depth first, siblings in code order.
// Type and nature are inherited from the closest ancestor that sets them.
func ParseChart(data []byte) ([]ChartAccount, error) {
	var root map[string]chartNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("accounting: parse chart: %w", err)
	}
	var out []ChartAccount
	var walk func(parent string, typ AccountType, nature Nature, nodes map[string]chartNode) error
	walk = func(parent string, typ AccountType, nature Nature, nodes map[string]chartNode) error {
		codes := make([]string, 0, len(nodes))
		for code := range nodes {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			node := nodes[code]
			code = strings.TrimSpace(code)
			if code == "" || strings.TrimSpace(node.Name) == "" {
				return fmt.Errorf("accounting: chart node under %q needs a code and a name", parent)
			}
			if parent != "" && (!strings.HasPrefix(code, parent) || len(code) <= len(parent)) {
				return fmt.Errorf("accounting: chart code %s does not extend parent %s", code, parent)
			}
			t, n := typ, nature
			if node.Type != "" {
				t = node.Type
			}
			if node.Nature != "" {
				n = node.Nature
			}
			if t == "" || n == "" {
				return fmt.Errorf("accounting: chart code %s has no type or nature", code)
			}
			out = append(out, ChartAccount{
				Code:       code,
				Name:       strings.TrimSpace(node.Name),
				ParentCode: parent,
				Level:      LevelForCode(code),
				Type:       t,
				Nature:     n,
			})
			if err := walk(code, t, n, node.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", "", "", root); err != nil {
		return nil, err
	}
	return out, nil
}
