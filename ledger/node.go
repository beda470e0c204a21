// Package ledger implements the transaction-ingestion core: identifier
// resolution and statement building from expanded graph nodes, commit
// chain tracing, and the merge engine that folds commits into
// immutable database versions.
package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Node is an already-expanded graph node: a mapping of predicate IRI
// to one or more value descriptors. Expansion of JSON-LD documents
// into this form is an external pure function; the ledger only
// consumes the result.
type Node struct {
	// ID is the node's IRI. Empty for blank nodes.
	ID string
	// Types lists the node's @type IRIs.
	Types []string
	// Properties maps predicate IRI to value descriptors.
	Properties map[string][]ValueNode
}

// ValueNode is one value descriptor: exactly one of Value (literal),
// List, or Node (nested node or bare reference) is set.
type ValueNode struct {
	// Value is a literal (string, bool, float64, int64).
	Value any
	// Type is the literal's datatype IRI, empty for plain literals.
	Type string
	// List holds ordered elements of an @list value.
	List []ValueNode
	// Node is a nested node or reference.
	Node *Node
}

// IsLiteral reports whether the descriptor carries a literal value.
func (v ValueNode) IsLiteral() bool { return v.Node == nil && v.List == nil }

// sortedPredicates returns the node's predicate IRIs in stable order
// so statement building is deterministic.
func (n *Node) sortedPredicates() []string {
	out := make([]string, 0, len(n.Properties))
	for iri := range n.Properties {
		out = append(out, iri)
	}
	sort.Strings(out)
	return out
}

// UnmarshalJSON decodes a node from expanded JSON-LD form.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return n.fromRaw(raw)
}

func (n *Node) fromRaw(raw map[string]json.RawMessage) error {
	n.Properties = nil
	for key, val := range raw {
		switch key {
		case "@id":
			if err := json.Unmarshal(val, &n.ID); err != nil {
				return fmt.Errorf("@id: %w", err)
			}
		case "@type":
			if err := unmarshalStringOrSlice(val, &n.Types); err != nil {
				return fmt.Errorf("@type: %w", err)
			}
		default:
			values, err := unmarshalValueNodes(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if n.Properties == nil {
				n.Properties = make(map[string][]ValueNode)
			}
			n.Properties[key] = values
		}
	}
	return nil
}

func unmarshalStringOrSlice(data []byte, out *[]string) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*out = []string{single}
		return nil
	}
	return json.Unmarshal(data, out)
}

// unmarshalValueNodes decodes a predicate's value set. Expanded
// JSON-LD always uses arrays of descriptors; bare scalars are accepted
// for convenience in fixtures.
func unmarshalValueNodes(data []byte) ([]ValueNode, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		vn, vErr := unmarshalValueNode(data)
		if vErr != nil {
			return nil, vErr
		}
		return []ValueNode{vn}, nil
	}

	out := make([]ValueNode, 0, len(arr))
	for _, item := range arr {
		vn, err := unmarshalValueNode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, vn)
	}
	return out, nil
}

func unmarshalValueNode(data []byte) (ValueNode, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Bare literal.
		var lit any
		if err := json.Unmarshal(data, &lit); err != nil {
			return ValueNode{}, err
		}
		return ValueNode{Value: lit}, nil
	}

	if listRaw, ok := raw["@list"]; ok {
		list, err := unmarshalValueNodes(listRaw)
		if err != nil {
			return ValueNode{}, fmt.Errorf("@list: %w", err)
		}
		return ValueNode{List: list}, nil
	}

	if valRaw, ok := raw["@value"]; ok {
		var vn ValueNode
		if err := json.Unmarshal(valRaw, &vn.Value); err != nil {
			return ValueNode{}, fmt.Errorf("@value: %w", err)
		}
		if typeRaw, ok := raw["@type"]; ok {
			if err := json.Unmarshal(typeRaw, &vn.Type); err != nil {
				return ValueNode{}, fmt.Errorf("@type: %w", err)
			}
		}
		return vn, nil
	}

	// Nested node or bare reference.
	var child Node
	if err := child.fromRaw(raw); err != nil {
		return ValueNode{}, err
	}
	return ValueNode{Node: &child}, nil
}

// MarshalJSON encodes the node back to expanded JSON-LD form.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Properties)+2)
	if n.ID != "" {
		out["@id"] = n.ID
	}
	if len(n.Types) > 0 {
		out["@type"] = n.Types
	}
	for iri, values := range n.Properties {
		encoded := make([]any, len(values))
		for i, v := range values {
			encoded[i] = v.encode()
		}
		out[iri] = encoded
	}
	return json.Marshal(out)
}

func (v ValueNode) encode() any {
	switch {
	case v.List != nil:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = item.encode()
		}
		return map[string]any{"@list": items}
	case v.Node != nil:
		return v.Node
	case v.Type != "":
		return map[string]any{"@value": v.Value, "@type": v.Type}
	default:
		return map[string]any{"@value": v.Value}
	}
}
