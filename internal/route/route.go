// Package route maps queued mutations to concrete HTTP calls.
//
// Routing is an explicit table keyed by (Entity, ActionType), built once at
// construction. Duplicate keys are a construction error, and a lookup for a
// pair with no entry fails loudly with ErrUnroutable instead of silently
// succeeding.
package route

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Entity is the closed set of domain resource kinds a sync action can target.
type Entity string

const (
	EntityProduct       Entity = "product"
	EntityCategory      Entity = "category"
	EntityOrder         Entity = "order"
	EntitySale          Entity = "sale"
	EntityCustomer      Entity = "customer"
	EntitySupplier      Entity = "supplier"
	EntityExpense       Entity = "expense"
	EntityStockMovement Entity = "stock_movement"

	// EntityGeneric tags actions whose endpoint matched no known collection.
	// They are only valid with an explicit endpoint and method.
	EntityGeneric Entity = "generic"
)

// ActionType is the kind of mutation.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Collection describes where an entity lives on the API.
type Collection struct {
	Entity Entity
	Path   string // e.g. "/products"
	IDKey  string // payload field holding the entity id, e.g. "product_id"
}

// Collections lists every routable entity and its API collection.
var Collections = []Collection{
	{EntityProduct, "/products", "product_id"},
	{EntityCategory, "/categories", "category_id"},
	{EntityOrder, "/orders", "order_id"},
	{EntitySale, "/sales", "sale_id"},
	{EntityCustomer, "/customers", "customer_id"},
	{EntitySupplier, "/suppliers", "supplier_id"},
	{EntityExpense, "/expenses", "expense_id"},
	{EntityStockMovement, "/stock/movements", "movement_id"},
}

// Entry is one row of the routing table. Path may contain {field}
// placeholders filled from the action payload.
type Entry struct {
	Entity Entity
	Type   ActionType
	Method string
	Path   string
}

// Call is a resolved HTTP-shaped replay.
type Call struct {
	Method string
	Path   string
}

type key struct {
	entity Entity
	typ    ActionType
}

// Table is an immutable routing table.
type Table struct {
	routes map[key]Entry
}

// NewTable builds a table from entries. Duplicate (Entity, ActionType)
// pairs and malformed entries are rejected.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{routes: make(map[key]Entry, len(entries))}
	for _, e := range entries {
		if e.Entity == "" || e.Type == "" {
			return nil, fmt.Errorf("route entry %s %s: entity and type are required", e.Method, e.Path)
		}
		if !strings.HasPrefix(e.Path, "/") {
			return nil, fmt.Errorf("route %s/%s: path %q must start with /", e.Entity, e.Type, e.Path)
		}
		switch e.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return nil, fmt.Errorf("route %s/%s: method %q is not a write method", e.Entity, e.Type, e.Method)
		}
		k := key{e.Entity, e.Type}
		if _, dup := t.routes[k]; dup {
			return nil, fmt.Errorf("route %s/%s: duplicate entry", e.Entity, e.Type)
		}
		t.routes[k] = e
	}
	return t, nil
}

// Default returns the table covering every collection:
//
//	create → POST   /<collection>
//	update → PUT    /<collection>/{<entity>_id}
//	delete → DELETE /<collection>/{<entity>_id}
func Default() *Table {
	entries := make([]Entry, 0, len(Collections)*3)
	for _, c := range Collections {
		item := c.Path + "/{" + c.IDKey + "}"
		entries = append(entries,
			Entry{c.Entity, ActionCreate, http.MethodPost, c.Path},
			Entry{c.Entity, ActionUpdate, http.MethodPut, item},
			Entry{c.Entity, ActionDelete, http.MethodDelete, item},
		)
	}
	t, err := NewTable(entries...)
	if err != nil {
		panic(fmt.Sprintf("default routing table: %v", err))
	}
	return t
}

// Entries returns the table rows sorted by entity then type.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.routes))
	for _, e := range t.routes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Resolve maps (entity, type) and the action payload to a concrete call.
func (t *Table) Resolve(entity Entity, typ ActionType, payload json.RawMessage) (Call, error) {
	e, ok := t.routes[key{entity, typ}]
	if !ok {
		return Call{}, &Error{Code: ErrCodeUnroutable, Entity: entity, Type: typ}
	}

	path, err := expand(e.Path, payload)
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			re.Entity, re.Type = entity, typ
		}
		return Call{}, err
	}
	return Call{Method: e.Method, Path: path}, nil
}

// expand fills {field} placeholders from a JSON object payload.
func expand(template string, payload json.RawMessage) (string, error) {
	if !strings.Contains(template, "{") {
		return template, nil
	}

	var fields map[string]any
	if len(payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return "", &Error{Code: ErrCodeBadPayload, Detail: err.Error()}
		}
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", &Error{Code: ErrCodeBadPayload, Detail: "unterminated placeholder in " + template}
		}
		name := rest[open+1 : open+end]
		b.WriteString(rest[:open])

		value, err := scalar(fields[name])
		if err != nil {
			return "", &Error{Code: ErrCodeMissingParam, Param: name, Detail: err.Error()}
		}
		b.WriteString(url.PathEscape(value))
		rest = rest[open+end+1:]
	}
	return b.String(), nil
}

func scalar(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", errors.New("missing")
	case string:
		if val == "" {
			return "", errors.New("empty")
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return fmt.Sprint(val), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// EntityForPath infers the entity from an endpoint path by collection
// prefix, matching on whole path segments ("/products/7" is a product,
// "/productsx" is not). The longest matching collection wins.
func EntityForPath(path string) (Entity, bool) {
	path, _, _ = strings.Cut(path, "?")
	best := -1
	var found Entity
	for _, c := range Collections {
		if path == c.Path || strings.HasPrefix(path, c.Path+"/") {
			if len(c.Path) > best {
				best = len(c.Path)
				found = c.Entity
			}
		}
	}
	return found, best >= 0
}

// TypeForMethod maps an HTTP write method to an action type.
func TypeForMethod(method string) (ActionType, bool) {
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate, true
	case http.MethodDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}
