package route

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Resolve(t *testing.T) {
	table := Default()

	tests := []struct {
		name    string
		entity  Entity
		typ     ActionType
		payload string
		want    Call
	}{
		{
			name:    "create product",
			entity:  EntityProduct,
			typ:     ActionCreate,
			payload: `{"name":"Rice 5kg","price":12.5}`,
			want:    Call{http.MethodPost, "/products"},
		},
		{
			name:    "update customer",
			entity:  EntityCustomer,
			typ:     ActionUpdate,
			payload: `{"customer_id":"c-42","name":"Awa"}`,
			want:    Call{http.MethodPut, "/customers/c-42"},
		},
		{
			name:    "delete expense numeric id",
			entity:  EntityExpense,
			typ:     ActionDelete,
			payload: `{"expense_id":9007199254740993}`,
			want:    Call{http.MethodDelete, "/expenses/9007199254740993"},
		},
		{
			name:    "id is path escaped",
			entity:  EntityOrder,
			typ:     ActionUpdate,
			payload: `{"order_id":"a/b c"}`,
			want:    Call{http.MethodPut, "/orders/a%2Fb%20c"},
		},
		{
			name:    "stock movement",
			entity:  EntityStockMovement,
			typ:     ActionCreate,
			payload: `{"product_id":"p1","quantity":3}`,
			want:    Call{http.MethodPost, "/stock/movements"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.entity, tt.typ, json.RawMessage(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefault_CoversEveryCollection(t *testing.T) {
	entries := Default().Entries()
	assert.Len(t, entries, len(Collections)*3)

	for _, c := range Collections {
		for _, typ := range []ActionType{ActionCreate, ActionUpdate, ActionDelete} {
			_, err := Default().Resolve(c.Entity, typ, json.RawMessage(`{"`+c.IDKey+`":"x"}`))
			assert.NoError(t, err, "%s/%s", c.Entity, typ)
		}
	}
}

func TestResolve_Unroutable(t *testing.T) {
	_, err := Default().Resolve(EntityGeneric, ActionCreate, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnroutable))
	assert.True(t, IsRouteError(err))
	assert.Contains(t, err.Error(), "unroutable")

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeUnroutable, re.Code)
}

func TestResolve_MissingParam(t *testing.T) {
	_, err := Default().Resolve(EntityCustomer, ActionUpdate, json.RawMessage(`{"name":"no id"}`))
	require.Error(t, err)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeMissingParam, re.Code)
	assert.Equal(t, "customer_id", re.Param)
	assert.Equal(t, EntityCustomer, re.Entity)
	assert.ErrorIs(t, err, ErrUnroutable)
}

func TestResolve_BadPayload(t *testing.T) {
	_, err := Default().Resolve(EntityCustomer, ActionDelete, json.RawMessage(`[1,2]`))
	require.Error(t, err)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeBadPayload, re.Code)
}

func TestNewTable_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    string
	}{
		{
			name: "duplicate",
			entries: []Entry{
				{EntityProduct, ActionCreate, http.MethodPost, "/products"},
				{EntityProduct, ActionCreate, http.MethodPut, "/products"},
			},
			want: "duplicate",
		},
		{
			name:    "read method",
			entries: []Entry{{EntityProduct, ActionCreate, http.MethodGet, "/products"}},
			want:    "not a write method",
		},
		{
			name:    "relative path",
			entries: []Entry{{EntityProduct, ActionCreate, http.MethodPost, "products"}},
			want:    "must start with /",
		},
		{
			name:    "missing entity",
			entries: []Entry{{"", ActionCreate, http.MethodPost, "/products"}},
			want:    "required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEntityForPath(t *testing.T) {
	tests := []struct {
		path string
		want Entity
		ok   bool
	}{
		{"/products", EntityProduct, true},
		{"/products/12", EntityProduct, true},
		{"/products?page=2", EntityProduct, true},
		{"/customers/7/notes", EntityCustomer, true},
		{"/stock/movements", EntityStockMovement, true},
		{"/productsx", "", false},
		{"/stock", "", false},
		{"/auth/logout", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := EntityForPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeForMethod(t *testing.T) {
	tests := []struct {
		method string
		want   ActionType
		ok     bool
	}{
		{"POST", ActionCreate, true},
		{"put", ActionUpdate, true},
		{"PATCH", ActionUpdate, true},
		{"DELETE", ActionDelete, true},
		{"GET", "", false},
	}
	for _, tt := range tests {
		got, ok := TypeForMethod(tt.method)
		assert.Equal(t, tt.ok, ok, tt.method)
		assert.Equal(t, tt.want, got, tt.method)
	}
}
